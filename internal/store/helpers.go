package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BTreeMap/BotRouter/internal/models"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// nullInt64 converts an optional id to a nullable column value.
func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// int64Ptr converts a nullable column back to an optional id.
func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

// encodeJSON serializes a JSON text column. Nil values are stored as SQL NULL.
func encodeJSON(v any) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON column: %w", err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return string(b), nil
}

type jsonColumn struct {
	name  string
	value sql.NullString
	dest  any
}

// decodeJSONColumns decodes each non-null JSON text column into its destination.
func decodeJSONColumns(cols ...jsonColumn) error {
	for _, c := range cols {
		if !c.value.Valid || c.value.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(c.value.String), c.dest); err != nil {
			return fmt.Errorf("failed to decode %s: %w", c.name, err)
		}
	}
	return nil
}

func scanSettings(row rowScanner) (*models.Settings, error) {
	var (
		st       models.Settings
		userID   sql.NullInt64
		provider string
		updated  int64
	)
	err := row.Scan(
		&st.ID, &userID, &st.BotName, &st.BotDescription, &st.BotWelcome, &st.BotAvatar,
		&st.EncryptedOpenAIKey, &st.EncryptedMistralKey, &st.EncryptedClaudeKey, &provider,
		&st.OpenAIModel, &st.MistralModel, &st.ClaudeModel, &updated,
	)
	if err != nil {
		return nil, err
	}
	st.UserID = int64Ptr(userID)
	st.CurrentProvider = models.Provider(provider)
	st.UpdatedAt = time.Unix(updated, 0).UTC()
	return &st, nil
}

func scanFlow(row rowScanner) (models.ConversationFlow, error) {
	var (
		f       models.ConversationFlow
		data    sql.NullString
		created int64
	)
	if err := row.Scan(&f.ID, &f.Name, &f.Description, &f.IsActive, &data, &created); err != nil {
		return f, err
	}
	if data.Valid && data.String != "" {
		f.FlowData = json.RawMessage(data.String)
	}
	f.CreatedAt = time.Unix(created, 0).UTC()
	return f, nil
}
