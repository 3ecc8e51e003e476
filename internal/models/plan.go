package models

// Plan описывает тариф подписки.
type Plan struct {
	Name   string  `json:"name"`
	Months int     `json:"months"`
	Price  float64 `json:"price"`
}

var plans = map[string]Plan{
	"mensual":    {Name: "mensual", Months: 1, Price: 10000},
	"trimestral": {Name: "trimestral", Months: 3, Price: 27000},
	"anual":      {Name: "anual", Months: 12, Price: 96000},
}

// LookupPlan возвращает тариф по имени.
func LookupPlan(name string) (Plan, bool) {
	p, ok := plans[name]
	return p, ok
}

// Plans возвращает все доступные тарифы.
func Plans() []Plan {
	return []Plan{plans["mensual"], plans["trimestral"], plans["anual"]}
}
