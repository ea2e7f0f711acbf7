package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/cruise-bookings/internal/domain"
)

type CatalogRepository interface {
	ListDestinations(ctx context.Context) ([]domain.Destination, error)
	GetDestination(ctx context.Context, id int64) (*domain.Destination, error)
	ListAmenities(ctx context.Context) ([]domain.Amenity, error)
	ListCruises(ctx context.Context) ([]domain.Cruise, error)
	GetCruise(ctx context.Context, id int64) (*domain.Cruise, error)
	ListCruisesByDestination(ctx context.Context, destinationID int64) ([]domain.Cruise, error)
	SearchCruises(ctx context.Context, f CruiseFilter) ([]domain.Cruise, error)

	ListVerifiedTestimonials(ctx context.Context) ([]domain.Testimonial, error)
	ListTestimonialsByCruise(ctx context.Context, cruiseID int64) ([]domain.Testimonial, error)
	CreateTestimonial(ctx context.Context, t *domain.Testimonial) (*domain.Testimonial, error)
	VerifyTestimonial(ctx context.Context, id int64) (*domain.Testimonial, error)
}

// CruiseFilter is a resolved search. Zero values mean "any".
type CruiseFilter struct {
	DestinationID int64
	MinDuration   int
	MaxDuration   int
}

type catalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepository{pool: pool}
}

const destinationCols = `id, name, description, image_url, price_from, rating, cruise_count, duration_range`

const amenityCols = `id, name, description, image_url`

const cruiseCols = `id, title, description, destination_id, image_url, departure_from,
duration, price_per_person, original_price, cabin_type, inclusions,
is_best_seller, is_new_itinerary, rating, available_packages`

const testimonialCols = `id, user_id, cruise_id, name, cruise_name, comment, rating,
avatar_url, is_verified, created_at`

func scanDestination(row pgx.Row) (*domain.Destination, error) {
	var d domain.Destination
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.ImageURL, &d.PriceFrom, &d.Rating, &d.CruiseCount, &d.DurationRange); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanAmenity(row pgx.Row) (*domain.Amenity, error) {
	var a domain.Amenity
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &a.ImageURL); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanCruise(row pgx.Row) (*domain.Cruise, error) {
	var c domain.Cruise
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.DestinationID, &c.ImageURL, &c.DepartureFrom,
		&c.Duration, &c.PricePerPerson, &c.OriginalPrice, &c.CabinType, &c.Inclusions,
		&c.IsBestSeller, &c.IsNewItinerary, &c.Rating, &c.AvailablePackages,
	)
	if err != nil {
		return nil, err
	}
	if c.AvailablePackages == nil {
		c.AvailablePackages = []string{}
	}
	return &c, nil
}

func scanTestimonial(row pgx.Row) (*domain.Testimonial, error) {
	var t domain.Testimonial
	err := row.Scan(
		&t.ID, &t.UserID, &t.CruiseID, &t.Name, &t.CruiseName, &t.Comment, &t.Rating,
		&t.AvatarURL, &t.IsVerified, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *catalogRepository) ListDestinations(ctx context.Context) ([]domain.Destination, error) {
	const q = `SELECT ` + destinationCols + ` FROM destinations ORDER BY id`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Destination{}
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *catalogRepository) GetDestination(ctx context.Context, id int64) (*domain.Destination, error) {
	const q = `SELECT ` + destinationCols + ` FROM destinations WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	d, err := scanDestination(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *catalogRepository) ListAmenities(ctx context.Context) ([]domain.Amenity, error) {
	const q = `SELECT ` + amenityCols + ` FROM amenities ORDER BY id`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Amenity{}
	for rows.Next() {
		a, err := scanAmenity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *catalogRepository) ListCruises(ctx context.Context) ([]domain.Cruise, error) {
	return r.cruises(ctx, `SELECT `+cruiseCols+` FROM cruises ORDER BY id`)
}

func (r *catalogRepository) GetCruise(ctx context.Context, id int64) (*domain.Cruise, error) {
	const q = `SELECT ` + cruiseCols + ` FROM cruises WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c, err := scanCruise(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *catalogRepository) ListCruisesByDestination(ctx context.Context, destinationID int64) ([]domain.Cruise, error) {
	return r.cruises(ctx, `SELECT `+cruiseCols+` FROM cruises WHERE destination_id=$1 ORDER BY id`, destinationID)
}

func (r *catalogRepository) SearchCruises(ctx context.Context, f CruiseFilter) ([]domain.Cruise, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.DestinationID > 0 {
		add("destination_id = ?", f.DestinationID)
	}
	if f.MinDuration > 0 {
		add("duration >= ?", f.MinDuration)
	}
	if f.MaxDuration > 0 {
		add("duration <= ?", f.MaxDuration)
	}

	q := `SELECT ` + cruiseCols + ` FROM cruises`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY is_best_seller DESC, rating DESC, id"
	return r.cruises(ctx, q, args...)
}

func (r *catalogRepository) cruises(ctx context.Context, q string, args ...any) ([]domain.Cruise, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Cruise{}
	for rows.Next() {
		c, err := scanCruise(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *catalogRepository) ListVerifiedTestimonials(ctx context.Context) ([]domain.Testimonial, error) {
	return r.testimonials(ctx, `SELECT `+testimonialCols+` FROM testimonials
	WHERE is_verified ORDER BY created_at DESC, id DESC`)
}

func (r *catalogRepository) ListTestimonialsByCruise(ctx context.Context, cruiseID int64) ([]domain.Testimonial, error) {
	return r.testimonials(ctx, `SELECT `+testimonialCols+` FROM testimonials
	WHERE cruise_id=$1 AND is_verified ORDER BY created_at DESC, id DESC`, cruiseID)
}

func (r *catalogRepository) testimonials(ctx context.Context, q string, args ...any) ([]domain.Testimonial, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Testimonial{}
	for rows.Next() {
		t, err := scanTestimonial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *catalogRepository) CreateTestimonial(ctx context.Context, t *domain.Testimonial) (*domain.Testimonial, error) {
	const q = `INSERT INTO testimonials (user_id, cruise_id, name, cruise_name, comment, rating, avatar_url, is_verified)
	VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE)
	RETURNING ` + testimonialCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanTestimonial(r.pool.QueryRow(ctx, q, t.UserID, t.CruiseID, t.Name, t.CruiseName, t.Comment, t.Rating, t.AvatarURL))
}

func (r *catalogRepository) VerifyTestimonial(ctx context.Context, id int64) (*domain.Testimonial, error) {
	const q = `UPDATE testimonials SET is_verified=TRUE WHERE id=$1 RETURNING ` + testimonialCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	t, err := scanTestimonial(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}
