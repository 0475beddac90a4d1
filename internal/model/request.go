package model

type GenerateRequest struct {
	Topic    string `json:"topic" binding:"required"`
	Style    string `json:"style" binding:"required"`
	Language string `json:"language"`
	AgeBand  string `json:"age_band"`
}

type AccessRequest struct {
	Password string `json:"password" binding:"required"`
}
