package request

type SeedSeatsRequest struct {
	Count int `json:"count" validate:"required,min=1,max=10000"`
}
