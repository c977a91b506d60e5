// Package model defines the data types shared by the session layer.
//
// Conventions:
//   - Quantities (order size, filled, remaining, position): decimal.Decimal
//   - Prices: float64, matching what the terminal reports
//   - Identifiers: int64 (order ids, request ids, contract ids)
//   - Wire sentinels (UnsetDouble, UnsetInteger, UnsetDecimal) mean "no value"
//     and are never stored as numbers
package model
