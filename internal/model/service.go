package model

// ServiceInfo is the live catalog entry for a bookable service.
type ServiceInfo struct {
    ID          string   `json:"id"`
    Name        string   `json:"name"`
    Shortcut    *string  `json:"shortcut,omitempty"`
    PriceSmall  *float64 `json:"price_small,omitempty"`
    PriceMedium *float64 `json:"price_medium,omitempty"`
    PriceLarge  *float64 `json:"price_large,omitempty"`
}

// ServiceCatalog maps service IDs to catalog entries.  A nil catalog is
// valid and resolves nothing.
type ServiceCatalog map[string]ServiceInfo

// Lookup returns the catalog entry for id.
func (c ServiceCatalog) Lookup(id string) (ServiceInfo, bool) {
    s, ok := c[id]
    return s, ok
}
