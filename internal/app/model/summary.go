package model

import "github.com/shopspring/decimal"

// Summary aggregates a listing per status.
type Summary struct {
	Count  map[Status]int             `json:"count"`
	Amount map[Status]decimal.Decimal `json:"amount"`
}

func Summarize(tt []*Transaction) Summary {
	s := Summary{
		Count:  make(map[Status]int),
		Amount: make(map[Status]decimal.Decimal),
	}
	for _, t := range tt {
		s.Count[t.Status]++
		s.Amount[t.Status] = s.Amount[t.Status].Add(t.Value)
	}
	return s
}
