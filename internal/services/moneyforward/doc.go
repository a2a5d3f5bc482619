// Package moneyforward implements the MoneyForward Invoice API client:
// billing creation and replacement keyed by billing number, plus the
// OAuth authorization-code flow with a persisted, self-refreshing
// token.
package moneyforward
