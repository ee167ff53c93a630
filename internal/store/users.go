package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/domain"
)

const userColumns = "id, username, fullname, gender, birth, address, phone, avatar, created_at, updated_at"

var (
	userCols = map[string]string{
		"id":        "id",
		"username":  "username",
		"fullname":  "fullname",
		"gender":    "gender",
		"birth":     "birth",
		"address":   "address",
		"phone":     "phone",
		"avatar":    "avatar",
		"createdAt": "created_at",
		"updatedAt": "updated_at",
	}
	userNumCols  = map[string]string{}
	userTimeCols = map[string]string{"createdAt": "created_at", "updatedAt": "updated_at", "birth": "birth"}

	userOrderExprs = map[string]string{
		"merchantCount": "(SELECT COUNT(*) FROM merchants WHERE merchants.user_id = users.id)",
	}
)

// UserFilter is the declarative predicate over users. All set conditions
// are combined with AND; And/Or/Not nest recursively.
type UserFilter struct {
	And []UserFilter
	Or  []UserFilter
	Not []UserFilter

	ID        *StringFilter
	Username  *StringFilter
	Fullname  *StringFilter
	Gender    *StringFilter
	Birth     *TimeFilter
	Address   *StringFilter
	Phone     *StringFilter
	CreatedAt *TimeFilter
	UpdatedAt *TimeFilter

	// Merchants filters users through their merchant list.
	Merchants *MerchantListFilter
}

func (f *UserFilter) sql(b *sqlBuilder, t string) string {
	if f == nil {
		return ""
	}
	parts := composeBool(b, t, f.And, f.Or, f.Not, func(b *sqlBuilder, t string, nf UserFilter) string {
		return nf.sql(b, t)
	})
	parts = appendSQL(parts, f.ID.sql(b, t+".id"))
	parts = appendSQL(parts, f.Username.sql(b, t+".username"))
	parts = appendSQL(parts, f.Fullname.sql(b, t+".fullname"))
	parts = appendSQL(parts, f.Gender.sql(b, t+".gender"))
	parts = appendSQL(parts, f.Birth.sql(b, t+".birth"))
	parts = appendSQL(parts, f.Address.sql(b, t+".address"))
	parts = appendSQL(parts, f.Phone.sql(b, t+".phone"))
	parts = appendSQL(parts, f.CreatedAt.sql(b, t+".created_at"))
	parts = appendSQL(parts, f.UpdatedAt.sql(b, t+".updated_at"))
	if f.Merchants != nil {
		parts = appendSQL(parts, f.Merchants.sql(b, "user_id", t+".id"))
	}
	return andAll(parts)
}

// UserInclude declares which user relations to eager-load.
type UserInclude struct {
	Merchants     *MerchantListOptions
	MerchantCount bool
}

// ListUsersParams mirrors the uniform findMany contract: filter, eager
// includes, ordering and either offset/limit or cursor/take pagination.
type ListUsersParams struct {
	Where   *UserFilter
	Include UserInclude
	OrderBy []Order
	Limit   int
	Offset  int
	Cursor  *string
	Take    int
}

func scanUser(r rowScanner) (*domain.User, error) {
	var u domain.User
	err := r.Scan(&u.ID, &u.Username, &u.Fullname, &u.Gender, &u.Birth,
		&u.Address, &u.Phone, &u.Avatar, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts one user. ID and timestamps are assigned when the
// caller leaves them empty.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	id := u.ID
	if id == "" {
		id = newID()
	}
	query := fmt.Sprintf(`INSERT INTO users (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()), COALESCE($10, now())) RETURNING %s`,
		userColumns, userColumns)
	row := s.q.QueryRowContext(ctx, query,
		id, u.Username, u.Fullname, u.Gender, u.Birth, u.Address, u.Phone, u.Avatar,
		timeOrNil(u.CreatedAt), timeOrNil(u.UpdatedAt))
	created, err := scanUser(row)
	if err != nil {
		return nil, mapError("CreateUser", err)
	}
	return created, nil
}

// CreateUsers batch-inserts users. With skipDuplicates, rows violating a
// uniqueness constraint are silently dropped; otherwise the first
// violation aborts. Returns the number of rows actually inserted. The
// batch is not atomic unless run inside WithinTx.
func (s *Store) CreateUsers(ctx context.Context, us []domain.User, skipDuplicates bool) (int64, error) {
	if len(us) == 0 {
		return 0, nil
	}
	b := &sqlBuilder{}
	values := make([]string, len(us))
	for i, u := range us {
		id := u.ID
		if id == "" {
			id = newID()
		}
		values[i] = fmt.Sprintf("(%s, %s, %s, %s, %s, %s, %s, %s, COALESCE(%s, now()), COALESCE(%s, now()))",
			b.arg(id), b.arg(u.Username), b.arg(u.Fullname), b.arg(u.Gender), b.arg(u.Birth),
			b.arg(u.Address), b.arg(u.Phone), b.arg(u.Avatar),
			b.arg(timeOrNil(u.CreatedAt)), b.arg(timeOrNil(u.UpdatedAt)))
	}
	query := fmt.Sprintf("INSERT INTO users (%s) VALUES %s", userColumns, strings.Join(values, ", "))
	if skipDuplicates {
		query += " ON CONFLICT DO NOTHING"
	}
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("CreateUsers", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("CreateUsers", err)
	}
	return n, nil
}

// FindUserByID returns (nil, nil) when no user matches.
func (s *Store) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.findUser(ctx, "FindUserByID", "id", id)
}

// GetUserByID is the or-fail variant: it reports ErrNotFound instead of an
// empty result.
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.findUser(ctx, "GetUserByID", "id", id)
	if err == nil && u == nil {
		return nil, notFound("GetUserByID")
	}
	return u, err
}

// FindUserByUsername returns (nil, nil) when no user matches.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.findUser(ctx, "FindUserByUsername", "username", username)
}

// GetUserByUsername reports ErrNotFound instead of an empty result.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	u, err := s.findUser(ctx, "GetUserByUsername", "username", username)
	if err == nil && u == nil {
		return nil, notFound("GetUserByUsername")
	}
	return u, err
}

func (s *Store) findUser(ctx context.Context, op, col, key string) (*domain.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE %s = $1", userColumns, col)
	u, err := scanUser(s.q.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(op, err)
	}
	return u, nil
}

// ListUsers returns the ordered page of users matching the filter.
func (s *Store) ListUsers(ctx context.Context, p ListUsersParams) ([]domain.User, error) {
	b := &sqlBuilder{}
	where := p.Where.sql(b, "users")
	query, reversed, err := listQuery{
		table: "users", selects: userColumns,
		cols: userCols, extra: userOrderExprs,
		where: where, orderBy: p.OrderBy,
		limit: p.Limit, offset: p.Offset, cursor: p.Cursor, take: p.Take,
	}.build("ListUsers", b)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError("ListUsers", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapError("ListUsers", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ListUsers", err)
	}
	if reversed {
		reverseSlice(users)
	}
	if err := s.loadUserRelations(ctx, users, p.Include); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) loadUserRelations(ctx context.Context, users []domain.User, inc UserInclude) error {
	if len(users) == 0 || (inc.Merchants == nil && !inc.MerchantCount) {
		return nil
	}
	ids := make([]string, len(users))
	byID := make(map[string][]int, len(users))
	for i, u := range users {
		ids[i] = u.ID
		byID[u.ID] = append(byID[u.ID], i)
	}
	if inc.Merchants != nil {
		children, err := s.merchantsOf(ctx, "ListUsers", "user_id", ids, *inc.Merchants)
		if err != nil {
			return err
		}
		for _, m := range children {
			for _, i := range byID[m.UserID] {
				users[i].Merchants = append(users[i].Merchants, m)
			}
		}
	}
	if inc.MerchantCount {
		counts, err := s.relationCounts(ctx, "ListUsers", "merchants", "user_id", ids)
		if err != nil {
			return err
		}
		for i := range users {
			n := counts[users[i].ID]
			users[i].MerchantCount = &n
		}
	}
	return nil
}

// UserPatch is a partial update: nil fields stay untouched. Nullable
// columns take a sql.Null* so callers can distinguish "leave unchanged"
// from "set NULL".
type UserPatch struct {
	Username *string
	Fullname *string
	Gender   *sql.NullString
	Birth    *sql.NullTime
	Address  *sql.NullString
	Phone    *sql.NullString
	Avatar   *sql.NullString
}

func (p UserPatch) apply(sb *setBuilder) {
	if p.Username != nil {
		sb.set("username", *p.Username)
	}
	if p.Fullname != nil {
		sb.set("fullname", *p.Fullname)
	}
	if p.Gender != nil {
		sb.set("gender", *p.Gender)
	}
	if p.Birth != nil {
		sb.set("birth", *p.Birth)
	}
	if p.Address != nil {
		sb.set("address", *p.Address)
	}
	if p.Phone != nil {
		sb.set("phone", *p.Phone)
	}
	if p.Avatar != nil {
		sb.set("avatar", *p.Avatar)
	}
}

// UpdateUser applies a partial patch and refreshes updated_at. ErrNotFound
// when the id does not match.
func (s *Store) UpdateUser(ctx context.Context, id string, patch UserPatch) (*domain.User, error) {
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = %s RETURNING %s", sb.clause(), b.arg(id), userColumns)
	u, err := scanUser(s.q.QueryRowContext(ctx, query, b.args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("UpdateUser")
		}
		return nil, mapError("UpdateUser", err)
	}
	return u, nil
}

// UpdateUsers applies the patch to every matching row, optionally capped
// by limit, and returns the affected-row count.
func (s *Store) UpdateUsers(ctx context.Context, where *UserFilter, patch UserPatch, limit int) (int64, error) {
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	pred := where.sql(b, "users")
	query := fmt.Sprintf("UPDATE users SET %s%s", sb.clause(), bulkScope(b, "users", pred, limit))
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("UpdateUsers", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("UpdateUsers", err)
	}
	return n, nil
}

// UpsertUser updates the user holding username, creating it when absent.
// The insert-with-conflict-fallback makes racing creators resolve inside
// the database: only one creation wins, the other request updates.
func (s *Store) UpsertUser(ctx context.Context, username string, create domain.User, update UserPatch) (*domain.User, error) {
	id := create.ID
	if id == "" {
		id = newID()
	}
	b := &sqlBuilder{}
	values := fmt.Sprintf("(%s, %s, %s, %s, %s, %s, %s, %s, COALESCE(%s, now()), COALESCE(%s, now()))",
		b.arg(id), b.arg(username), b.arg(create.Fullname), b.arg(create.Gender), b.arg(create.Birth),
		b.arg(create.Address), b.arg(create.Phone), b.arg(create.Avatar),
		b.arg(timeOrNil(create.CreatedAt)), b.arg(timeOrNil(create.UpdatedAt)))
	sb := &setBuilder{b: b}
	update.apply(sb)
	query := fmt.Sprintf("INSERT INTO users (%s) VALUES %s ON CONFLICT (username) DO UPDATE SET %s RETURNING %s",
		userColumns, values, sb.clause(), userColumns)
	u, err := scanUser(s.q.QueryRowContext(ctx, query, b.args...))
	if err != nil {
		return nil, mapError("UpsertUser", err)
	}
	return u, nil
}

// DeleteUser removes one user; ErrNotFound when nothing matched. Users
// still owning merchants cannot be deleted (ErrConstraintViolation).
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.deleteOne(ctx, "DeleteUser", "users", id)
}

// DeleteUsers removes every matching row, optionally capped by limit.
// Deleting zero rows is not an error.
func (s *Store) DeleteUsers(ctx context.Context, where *UserFilter, limit int) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "users")
	return s.deleteMany(ctx, "DeleteUsers", "users", b, pred, limit)
}

// CountUsers counts rows matching the filter.
func (s *Store) CountUsers(ctx context.Context, where *UserFilter) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "users")
	return s.countRows(ctx, "CountUsers", "users", b, pred)
}

// AggregateUsers computes the requested statistics over matching users.
func (s *Store) AggregateUsers(ctx context.Context, where *UserFilter, spec AggregateSpec) (*Aggregate, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "users")
	return s.aggregateRows(ctx, "AggregateUsers", "users", userNumCols, userTimeCols, b, pred, spec)
}

// GroupUsersBy groups matching users by the given fields.
func (s *Store) GroupUsersBy(ctx context.Context, where *UserFilter, p GroupByParams) ([]Group, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "users")
	return s.groupRows(ctx, "GroupUsersBy", "users", userCols, userNumCols, userTimeCols, b, pred, p)
}

// usersOf batch-loads users referenced by the given ids (eager include of
// a to-one relation).
func (s *Store) usersOf(ctx context.Context, op string, ids []string) (map[string]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = ANY($1)", userColumns)
	rows, err := s.q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	out := make(map[string]domain.User)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out[u.ID] = *u
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}
