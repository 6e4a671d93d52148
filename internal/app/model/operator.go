package model

type Operator struct {
	Name string `json:"name"`
}
