package dict

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldwork/fieldwork-backend/internal/projects/domain"
)

// Dictionary types the core reads.
const (
	TypeTechnology     = "sys_technology"
	TypeProjectAuditor = "project_auditor"
)

// Entry is one row of the shared dictionary table. For the auditor
// roster the label holds a user id.
type Entry struct {
	ID       string `json:"id"`
	FatherID string `json:"fatherId,omitempty"`
	Label    string `json:"dictLabel"`
	Value    string `json:"dictValue"`
	Type     string `json:"dictType"`
	Remark   string `json:"remark,omitempty"`
}

// Repo reads the dictionary table. The table itself is maintained by an
// external admin surface; the core only looks things up.
type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Lookup returns all entries of one dictionary type in sort order.
func (r *Repo) Lookup(ctx context.Context, dictType string) ([]Entry, error) {
	const q = `
SELECT dict_code, coalesce(father_id, ''), dict_label, dict_value, dict_type, remark
FROM dict_entries
WHERE dict_type = $1
ORDER BY dict_sort ASC;
`
	rows, err := r.db.QueryContext(ctx, q, dictType)
	if err != nil {
		return nil, fmt.Errorf("%w: dict lookup: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	out := make([]Entry, 0, 16)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.FatherID, &e.Label, &e.Value, &e.Type, &e.Remark); err != nil {
			return nil, fmt.Errorf("%w: scan dict entry: %v", domain.ErrStorage, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return out, nil
}

// Labels returns just the labels of one dictionary type.
func (r *Repo) Labels(ctx context.Context, dictType string) ([]string, error) {
	entries, err := r.Lookup(ctx, dictType)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(entries))
	for _, e := range entries {
		labels = append(labels, e.Label)
	}
	return labels, nil
}
