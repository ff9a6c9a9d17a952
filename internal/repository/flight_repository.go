package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aircover/claimpipe/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type flightRepository struct {
	pool *pgxpool.Pool
}

// NewFlightRepository wires a flight repository backed by pgxpool.
func NewFlightRepository(pool *pgxpool.Pool) FlightRepository {
	return &flightRepository{pool: pool}
}

func (r *flightRepository) LatestByNumber(ctx context.Context, flightNumber string) (domain.Flight, bool, error) {
	var (
		flight    domain.Flight
		airline   pgtype.Text
		origin    pgtype.Text
		dest      pgtype.Text
		scheduled pgtype.Text
		actual    pgtype.Text
	)

	err := r.pool.QueryRow(
		ctx,
		`SELECT flight_number, airline, origin, destination, scheduled_departure, actual_departure
		 FROM fact_flights
		 WHERE flight_number = $1
		 ORDER BY scheduled_departure DESC NULLS LAST
		 LIMIT 1`,
		flightNumber,
	).Scan(&flight.FlightNumber, &airline, &origin, &dest, &scheduled, &actual)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Flight{}, false, nil
		}
		return domain.Flight{}, false, fmt.Errorf("failed to query flight %s: %w", flightNumber, err)
	}

	if airline.Valid {
		flight.Airline = airline.String
	}
	if origin.Valid {
		flight.Origin = origin.String
	}
	if dest.Valid {
		flight.Destination = dest.String
	}
	if scheduled.Valid {
		value := scheduled.String
		flight.ScheduledDeparture = &value
	}
	if actual.Valid {
		value := actual.String
		flight.ActualDeparture = &value
	}

	return flight, true, nil
}
