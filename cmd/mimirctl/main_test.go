package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/auth"
	"github.com/rafaeljc/mimir/internal/cohort"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCohortAssign(t *testing.T) {
	t.Run("Should print the same cohort the engine assigns", func(t *testing.T) {
		out, err := execute(t, "cohort", "assign", "--user", "player-42", "--experiment", "exp-1",
			"--cohorts", `{"a":0.5,"b":0.5}`)
		require.NoError(t, err)

		var res cohortResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))

		dist, err := cohort.ParseDistribution([]byte(`{"a":0.5,"b":0.5}`))
		require.NoError(t, err)
		assert.Equal(t, cohort.AssignCohort("player-42", dist), res.Cohort)
		assert.Equal(t, "rolling", res.Strategy)
		assert.GreaterOrEqual(t, res.Bucket, 0.0)
		assert.Less(t, res.Bucket, 1.0)
	})

	t.Run("Should honour the murmur3 strategy", func(t *testing.T) {
		out, err := execute(t, "cohort", "assign", "--user", "player-42", "--experiment", "exp-1", "--strategy", "murmur3")
		require.NoError(t, err)

		var res cohortResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, "murmur3", res.Strategy)
	})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"Should require a user", []string{"cohort", "assign"}, "--user"},
		{"Should reject non-numeric weights", []string{"cohort", "assign", "--user", "u", "--cohorts", `{"a":"half"}`}, "invalid cohort distribution"},
		{"Should reject unknown strategies", []string{"cohort", "assign", "--user", "u", "--strategy", "md5"}, "unknown hash strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTokenIssue(t *testing.T) {
	t.Run("Should mint a token the data plane verifier accepts", func(t *testing.T) {
		const secret = "cli-test-secret-long-enough"
		out, err := execute(t, "token", "issue", "--subject", "ops-1", "--role", auth.RoleAdmin,
			"--issuer", "mimir", "--secret", secret)
		require.NoError(t, err)

		v, err := auth.NewJWTVerifier(secret, "mimir")
		require.NoError(t, err)
		id, err := v.Verify(strings.TrimSpace(out))
		require.NoError(t, err)
		assert.Equal(t, "ops-1", id.Subject)
		assert.True(t, id.IsAdmin())
	})

	t.Run("Should fall back to the environment secret", func(t *testing.T) {
		t.Setenv(secretEnv, "env-secret-for-cli-tests")
		out, err := execute(t, "token", "issue", "--subject", "player-1")
		require.NoError(t, err)

		v, err := auth.NewJWTVerifier("env-secret-for-cli-tests", "")
		require.NoError(t, err)
		_, err = v.Verify(strings.TrimSpace(out))
		assert.NoError(t, err)
	})

	t.Run("Should fail without a secret", func(t *testing.T) {
		t.Setenv(secretEnv, "")
		_, err := execute(t, "token", "issue", "--subject", "player-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), secretEnv)
	})
}

func TestMigrateDownArgs(t *testing.T) {
	t.Run("Should reject a non-integer step count before connecting", func(t *testing.T) {
		_, err := execute(t, "migrate", "down", "two")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "steps must be an integer")
	})
}
