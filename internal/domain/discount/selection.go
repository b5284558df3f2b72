package discount

// Selection holds at most one selected voucher per scope.
type Selection struct {
	Shipping string
	Order    string
}

func (s *Selection) slot(scope Scope) *string {
	if scope == ScopeShipping {
		return &s.Shipping
	}
	return &s.Order
}

// Toggle selects v, replacing any voucher of the same scope. Toggling the
// already-selected voucher unselects it. The other scope is untouched.
func (s *Selection) Toggle(v Voucher) {
	slot := s.slot(v.Scope)
	if *slot == v.ID {
		*slot = ""
		return
	}
	*slot = v.ID
}

// Clear unselects both scopes.
func (s *Selection) Clear() {
	*s = Selection{}
}

// Has reports whether id is selected in either scope.
func (s Selection) Has(id string) bool {
	return id != "" && (s.Shipping == id || s.Order == id)
}

// IDs returns the selected voucher ids, shipping first.
func (s Selection) IDs() []string {
	ids := make([]string, 0, 2)
	if s.Shipping != "" {
		ids = append(ids, s.Shipping)
	}
	if s.Order != "" {
		ids = append(ids, s.Order)
	}
	return ids
}

// IsEmpty reports whether nothing is selected.
func (s Selection) IsEmpty() bool {
	return s.Shipping == "" && s.Order == ""
}

// Retain drops selections whose id is not in known.
func (s *Selection) Retain(known func(id string) bool) {
	if s.Shipping != "" && !known(s.Shipping) {
		s.Shipping = ""
	}
	if s.Order != "" && !known(s.Order) {
		s.Order = ""
	}
}
