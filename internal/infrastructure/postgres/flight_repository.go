package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/alexxvives/JetChance-sub001/internal/domain/flight"
	"github.com/alexxvives/JetChance-sub001/internal/domain/transaction"
)

const flightColumns = `id, operator_id, origin, destination, departure_at, arrival_at, aircraft_type,
	total_seats, available_seats, price_per_seat, status, created_at, updated_at`

// onSaleStatusSQL は空席数の式 %[1]s から販売中の状態を導出する（flight.DeriveStatus と同じ規則）
const onSaleStatusSQL = `CASE
		WHEN %[1]s <= 0 THEN 'fully_booked'
		WHEN %[1]s < total_seats THEN 'partially_booked'
		ELSE 'active'
	END`

// seatStatusSQL は販売中の場合のみ状態を再計算し、それ以外の状態は維持する
const seatStatusSQL = `CASE
		WHEN status IN ('active', 'partially_booked', 'fully_booked') THEN ` + onSaleStatusSQL + `
		ELSE status
	END`

var onSaleStatuses = []string{
	string(flight.StatusActive),
	string(flight.StatusPartiallyBooked),
	string(flight.StatusFullyBooked),
}

type flightRow struct {
	ID             string    `db:"id"`
	OperatorID     string    `db:"operator_id"`
	Origin         string    `db:"origin"`
	Destination    string    `db:"destination"`
	DepartureAt    time.Time `db:"departure_at"`
	ArrivalAt      time.Time `db:"arrival_at"`
	AircraftType   string    `db:"aircraft_type"`
	TotalSeats     int       `db:"total_seats"`
	AvailableSeats int       `db:"available_seats"`
	PricePerSeat   int64     `db:"price_per_seat"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r *flightRow) toEntity() *flight.Flight {
	return &flight.Flight{
		ID: r.ID, OperatorID: r.OperatorID,
		Origin: r.Origin, Destination: r.Destination,
		DepartureAt: r.DepartureAt, ArrivalAt: r.ArrivalAt,
		AircraftType: r.AircraftType,
		TotalSeats:   r.TotalSeats, AvailableSeats: r.AvailableSeats,
		PricePerSeat: r.PricePerSeat, Status: flight.Status(r.Status),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

// FlightRepository はフライト在庫ストアのPostgreSQL実装
// available_seats の更新は常に条件付き UPDATE 1文で行い、行ロックで並行予約を直列化する
type FlightRepository struct {
	db *sqlx.DB
}

// NewFlightRepository はFlightRepositoryを作成する
func NewFlightRepository(db *sqlx.DB) *FlightRepository {
	return &FlightRepository{db: db}
}

// Create は新しいフライトを作成する
func (r *FlightRepository) Create(ctx context.Context, f *flight.Flight) error {
	query := `
		INSERT INTO flights (operator_id, origin, destination, departure_at, arrival_at, aircraft_type,
			total_seats, available_seats, price_per_seat, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		f.OperatorID, f.Origin, f.Destination, f.DepartureAt, f.ArrivalAt, f.AircraftType,
		f.TotalSeats, f.AvailableSeats, f.PricePerSeat, string(f.Status), f.CreatedAt, f.UpdatedAt,
	).Scan(&f.ID)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", flight.ErrInvalidRequest, err)
		}
		return transaction.Wrap("flight.Create", err)
	}
	return nil
}

// GetByID はIDからフライトを取得する
func (r *FlightRepository) GetByID(ctx context.Context, id string) (*flight.Flight, error) {
	return r.get(ctx, r.db, id)
}

func (r *FlightRepository) get(ctx context.Context, q sqlx.QueryerContext, id string) (*flight.Flight, error) {
	var row flightRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+flightColumns+` FROM flights WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return nil, flight.ErrFlightNotFound
		}
		return nil, transaction.Wrap("flight.GetByID", err)
	}
	return row.toEntity(), nil
}

// Search は条件に一致するフライト一覧を出発日時の昇順で取得する
func (r *FlightRepository) Search(ctx context.Context, q flight.SearchQuery) ([]*flight.Flight, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.Origin != "" {
		add("origin = $%d", strings.ToUpper(q.Origin))
	}
	if q.Destination != "" {
		add("destination = $%d", strings.ToUpper(q.Destination))
	}
	if !q.DepartureOn.IsZero() {
		day := time.Date(q.DepartureOn.Year(), q.DepartureOn.Month(), q.DepartureOn.Day(), 0, 0, 0, 0, q.DepartureOn.Location())
		add("departure_at >= $%d", day)
		add("departure_at < $%d", day.AddDate(0, 0, 1))
	}
	if q.MinSeats > 0 {
		add("available_seats >= $%d", q.MinSeats)
	}
	if q.BookableOnly {
		add("status = ANY($%d)", pq.Array(onSaleStatuses))
	}

	query := `SELECT ` + flightColumns + ` FROM flights`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, q.Offset)
	query += fmt.Sprintf(` ORDER BY departure_at ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	var rows []flightRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, transaction.Wrap("flight.Search", err)
	}
	flights := make([]*flight.Flight, len(rows))
	for i := range rows {
		flights[i] = rows[i].toEntity()
	}
	return flights, nil
}

// UpdateStatus は運航者・管理者による状態遷移を行う
// 遷移元の確認と更新を1文で行うため、並行する予約や他の状態変更と競合しない
func (r *FlightRepository) UpdateStatus(ctx context.Context, id string, to flight.Status) (*flight.Flight, error) {
	sources := flight.SourcesOf(to)
	if len(sources) == 0 {
		return nil, flight.ErrInvalidTransition
	}
	from := make([]string, len(sources))
	for i, s := range sources {
		from[i] = string(s)
	}

	// active への遷移は空席数から販売中の状態を導出する
	query := `
		UPDATE flights
		SET status = CASE
				WHEN $2::text = 'active' THEN ` + fmt.Sprintf(onSaleStatusSQL, "available_seats") + `
				ELSE $2::text
			END,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
		RETURNING ` + flightColumns

	var row flightRow
	err := r.db.GetContext(ctx, &row, query, id, string(to), pq.Array(from))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, flight.ErrInvalidTransition
		}
		if isInvalidID(err) {
			return nil, flight.ErrFlightNotFound
		}
		return nil, transaction.Wrap("flight.UpdateStatus", err)
	}
	return row.toEntity(), nil
}

// DecrementSeats は空席数 >= count かつ販売中の場合のみ原子的に減算する
// 条件を満たさない場合は現在の行を読み直して失敗理由を判定する
func (r *FlightRepository) DecrementSeats(ctx context.Context, tx transaction.Tx, id string, count int) (*flight.Flight, error) {
	if count <= 0 {
		return nil, flight.ErrInvalidSeatCount
	}
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return nil, transaction.Wrap("flight.DecrementSeats", err)
	}

	query := `
		UPDATE flights
		SET available_seats = available_seats - $2,
			status = ` + fmt.Sprintf(seatStatusSQL, "available_seats - $2") + `,
			updated_at = NOW()
		WHERE id = $1 AND available_seats >= $2 AND status = ANY($3)
		RETURNING ` + flightColumns

	var row flightRow
	err = sqlTx.GetContext(ctx, &row, query, id, count, pq.Array(onSaleStatuses))
	if err == nil {
		return row.toEntity(), nil
	}
	if isInvalidID(err) {
		return nil, flight.ErrFlightNotFound
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, transaction.Wrap("flight.DecrementSeats", err)
	}

	current, err := r.get(ctx, sqlTx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsBookable() {
		return nil, flight.ErrFlightNotBookable
	}
	return nil, flight.ErrInsufficientSeats
}

// RestoreSeats は空席数 + count <= 総座席数 の場合のみ原子的に加算する
// キャンセル済み・運航済みのフライトは状態を維持する
func (r *FlightRepository) RestoreSeats(ctx context.Context, tx transaction.Tx, id string, count int) (*flight.Flight, error) {
	if count <= 0 {
		return nil, flight.ErrInvalidSeatCount
	}
	sqlTx, err := UnwrapTx(tx)
	if err != nil {
		return nil, transaction.Wrap("flight.RestoreSeats", err)
	}

	query := `
		UPDATE flights
		SET available_seats = available_seats + $2,
			status = ` + fmt.Sprintf(seatStatusSQL, "available_seats + $2") + `,
			updated_at = NOW()
		WHERE id = $1 AND available_seats + $2 <= total_seats
		RETURNING ` + flightColumns

	var row flightRow
	err = sqlTx.GetContext(ctx, &row, query, id, count)
	if err == nil {
		return row.toEntity(), nil
	}
	if isInvalidID(err) {
		return nil, flight.ErrFlightNotFound
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, transaction.Wrap("flight.RestoreSeats", err)
	}

	if _, err := r.get(ctx, sqlTx, id); err != nil {
		return nil, err
	}
	return nil, flight.ErrSeatRestoreExceedsCapacity
}

// インターフェースを満たしているか確認
var _ flight.Repository = (*FlightRepository)(nil)
