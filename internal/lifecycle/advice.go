package lifecycle

// Advice is the result of the pre-submit affordability check. It is shown to
// the user and never prevents the request; the backend decides.
type Advice struct {
	Allowed   bool
	Stale     bool    // balance may be out of date
	Shortfall float64 // how much is missing when not allowed
}

func Affordable(balance, cost float64, stale bool) Advice {
	if balance >= cost {
		return Advice{Allowed: true, Stale: stale}
	}
	return Advice{Allowed: false, Stale: stale, Shortfall: cost - balance}
}
