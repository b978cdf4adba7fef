package models

// Token is resolved once per process and never changes afterwards.
type Token struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	Icon     string `json:"icon,omitempty"`
}
