package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, in := range []string{
		"2024-01-02T03:04:05Z",
		"2024-01-02T05:04:05+02:00",
		"2024-01-02 03:04:05+00",
		"2024-01-02 03:04:05+00:00",
		"2024-01-02 03:04:05",
	} {
		t.Run(in, func(t *testing.T) {
			ts, err := ParseTimestamp(in)
			require.NoError(t, err)
			assert.True(t, want.Equal(ts.Time), "got %s", ts.Time)
			assert.Equal(t, time.UTC, ts.Location())
		})
	}

	ts, err := ParseTimestamp("2024-01-02 03:04:05.123456+00")
	require.NoError(t, err)
	assert.Equal(t, 123456000, ts.Nanosecond())

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestTimestampJSON(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-01-02 03:04:05+00"`), &ts))
	b, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-01-02T03:04:05Z"`, string(b))

	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())
	b, err = json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestTimestampScan(t *testing.T) {
	var ts Timestamp
	require.NoError(t, ts.Scan(time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))))
	assert.Equal(t, 2, ts.Hour())

	require.NoError(t, ts.Scan([]byte("2024-01-02 03:04:05+00")))
	assert.Equal(t, 3, ts.Hour())

	require.NoError(t, ts.Scan(nil))
	assert.True(t, ts.IsZero())

	assert.Error(t, ts.Scan(42))
}

func TestUserDecodeAndValidate(t *testing.T) {
	var u User
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 7, "name": "Ada", "email": "ada@example.com",
		"role": "moderator", "status": "inactive", "created_at": "2024-01-02T03:04:05Z"
	}`), &u))
	require.NoError(t, u.Validate())
	assert.EqualValues(t, 7, u.RecordID())
	assert.Equal(t, RoleModerator, u.Role)

	u.Role = "owner"
	assert.ErrorIs(t, u.Validate(), ErrInvalid)

	u.Role = RoleUser
	u.ID = 0
	assert.ErrorIs(t, u.Validate(), ErrInvalid)
}

func TestUserInsertValidate(t *testing.T) {
	ok := UserInsert{Name: "Ada", Email: "ada@example.com", Role: RoleAdmin, Status: StatusActive}
	require.NoError(t, ok.Validate())

	cases := map[string]func(*UserInsert){
		"blank name": func(u *UserInsert) { u.Name = "  " },
		"no email":   func(u *UserInsert) { u.Email = "" },
		"bad role":   func(u *UserInsert) { u.Role = "root" },
		"bad status": func(u *UserInsert) { u.Status = "banned" },
		"empty role": func(u *UserInsert) { u.Role = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := ok
			mutate(&in)
			assert.ErrorIs(t, in.Validate(), ErrInvalid)
		})
	}
}

func TestPatchValidate(t *testing.T) {
	empty := ""
	title := "Buy milk"
	bad := Role("root")

	assert.NoError(t, UserPatch{}.Validate())
	assert.ErrorIs(t, UserPatch{Name: &empty}.Validate(), ErrInvalid)
	assert.ErrorIs(t, UserPatch{Role: &bad}.Validate(), ErrInvalid)

	assert.NoError(t, TodoPatch{Title: &title}.Validate())
	assert.ErrorIs(t, TodoPatch{Title: &empty}.Validate(), ErrInvalid)
}

func TestTodoValidate(t *testing.T) {
	assert.NoError(t, Todo{ID: 1}.Validate())
	assert.ErrorIs(t, Todo{}.Validate(), ErrInvalid)
	assert.NoError(t, TodoInsert{Title: "x"}.Validate())
	assert.ErrorIs(t, TodoInsert{Title: " "}.Validate(), ErrInvalid)

	b, err := json.Marshal(TodoPatch{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))
}
