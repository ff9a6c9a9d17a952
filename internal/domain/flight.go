package domain

// Flight is a warehouse flight record. Departure timestamps are kept as the
// raw loaded strings; they may be absent or unparseable and the eligibility
// determination classifies both cases.
type Flight struct {
	FlightNumber       string  `json:"flight_number"`
	Airline            string  `json:"airline"`
	Origin             string  `json:"origin"`
	Destination        string  `json:"destination"`
	ScheduledDeparture *string `json:"scheduled_departure,omitempty"`
	ActualDeparture    *string `json:"actual_departure,omitempty"`
}
