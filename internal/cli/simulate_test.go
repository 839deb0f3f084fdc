package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulationPlaysToTheEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	svc, err := buildServices(ctx, config.Config{})
	require.NoError(t, err)
	defer svc.Close()

	sim := simulation{
		coord:       svc.coord,
		quizzes:     svc.quizzes,
		quizID:      "arithmetic",
		bots:        3,
		maxThink:    20 * time.Millisecond,
		resultDelay: 10 * time.Millisecond,
	}
	board, err := sim.run(ctx)
	require.NoError(t, err)
	require.Len(t, board, 4, "three bots and the host")
	for i, e := range board {
		assert.Equal(t, i+1, e.Rank)
		assert.LessOrEqual(t, e.Score, 3*1500)
	}

	global, err := svc.coord.GetGlobalLeaderboard(ctx, "arithmetic")
	require.NoError(t, err)
	assert.Len(t, global, 4)
}

func TestSimulationNeedsBots(t *testing.T) {
	svc, err := buildServices(context.Background(), config.Config{})
	require.NoError(t, err)
	defer svc.Close()

	_, err = simulation{coord: svc.coord, quizzes: svc.quizzes, quizID: "arithmetic"}.run(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSimulateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game:\n  resultDelay: 5ms\n"), 0o600))

	cmd := NewSimulateCmd(&path)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--quiz", "arithmetic", "--bots", "2", "--think", "10ms"})
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "Bot 1")
	assert.Contains(t, out.String(), "Bot 2")
}

func TestMigrateRequiresPostgres(t *testing.T) {
	err := runMigrationsWithConfig(context.Background(), config.Config{})
	assert.EqualError(t, err, "postgres url not configured")
}
