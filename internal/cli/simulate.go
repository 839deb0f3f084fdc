package cli

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/participant"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const simulatorHostID = "sim-host"

// NewSimulateCmd plays a whole session with bot participants against the configured stores.
func NewSimulateCmd(configPath *string) *cobra.Command {
	var (
		quizID   string
		bots     int
		maxThink time.Duration
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Host a session and play it with bot participants",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return err
			}
			svc, err := buildServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			sim := simulation{
				coord:       svc.coord,
				quizzes:     svc.quizzes,
				quizID:      quizID,
				bots:        bots,
				maxThink:    maxThink,
				resultDelay: config.TTLDuration(cfg.Game.ResultDelay, participant.DefaultResultDelay),
			}
			board, err := sim.run(cmd.Context())
			if err != nil {
				return err
			}
			for _, e := range board {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %-12s %5d pts  %d correct\n", e.Rank, e.Name, e.Score, e.CorrectAnswers)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "general-knowledge", "quiz id to play")
	cmd.Flags().IntVar(&bots, "bots", 4, "number of bot participants")
	cmd.Flags().DurationVar(&maxThink, "think", 1500*time.Millisecond, "upper bound of a bot's thinking time")
	return cmd
}

type simulation struct {
	coord       *app.Coordinator
	quizzes     app.QuizRepository
	quizID      string
	bots        int
	maxThink    time.Duration
	resultDelay time.Duration
}

func (s simulation) run(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	if s.bots < 1 {
		return nil, fmt.Errorf("at least one bot is required: %w", domain.ErrInvalidArgument)
	}
	quiz, err := s.quizzes.GetQuiz(ctx, s.quizID)
	if err != nil {
		return nil, err
	}
	host, err := s.coord.HostSession(ctx, s.quizID, simulatorHostID, "Simulator")
	if err != nil {
		return nil, err
	}
	log.Info().Str("session_id", host.SessionID).Str("game_code", host.GameCode).Msg("simulation hosted")

	ids := make([]string, s.bots)
	for i := range ids {
		ids[i] = fmt.Sprintf("bot-%d", i+1)
		if _, err := s.coord.JoinSession(ctx, host.GameCode, ids[i], fmt.Sprintf("Bot %d", i+1)); err != nil {
			return nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		client := participant.NewClient(s.coord, host.SessionID, id, participant.WithResultDelay(s.resultDelay))
		g.Go(func() error { return s.playBot(gctx, client, quiz) })
	}
	g.Go(func() error { return s.driveHost(gctx, host.SessionID) })

	if err := s.coord.StartRound(ctx, host.SessionID, simulatorHostID); err != nil {
		return nil, err
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s.coord.GetLiveLeaderboard(ctx, host.SessionID)
}

// playBot answers every question after a random pause and stops when the game is over.
func (s simulation) playBot(ctx context.Context, client *participant.Client, quiz domain.Quiz) error {
	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	answered := -1
	for {
		select {
		case err := <-runErr:
			return err
		case v := <-client.Views():
			if v.Phase != participant.PhaseQuestion || v.Answered || v.QuestionIndex == answered {
				continue
			}
			if v.QuestionIndex >= len(quiz.Questions) {
				continue
			}
			answered = v.QuestionIndex
			index := v.QuestionIndex
			choice := rand.Intn(len(quiz.Questions[index].Options))
			think := time.Duration(rand.Int63n(int64(s.maxThink) + 1))
			go func() {
				select {
				case <-time.After(think):
				case <-ctx.Done():
					return
				}
				err := client.Answer(ctx, index, choice)
				if err != nil && !errors.Is(err, participant.ErrNotAnswerable) && !errors.Is(err, participant.ErrStopped) {
					log.Warn().Err(err).Int("question_index", index).Msg("bot answer failed")
				}
			}()
		}
	}
}

// driveHost advances as soon as every bot has been scored for the current question.
func (s simulation) driveHost(ctx context.Context, sessionID string) error {
	updates := make(chan domain.Session, 16)
	cancel, err := s.coord.SubscribeSession(ctx, sessionID, func(session domain.Session) {
		select {
		case updates <- session:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case session := <-updates:
			if session.Status == domain.StatusFinished {
				return nil
			}
			if session.Status != domain.StatusPlaying || !everyoneAnswered(session) {
				continue
			}
			// Leave the result screen up for a moment before moving on.
			select {
			case <-time.After(s.resultDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			if err := s.coord.AdvanceRound(ctx, sessionID, simulatorHostID, session.CurrentQuestionIndex); err != nil {
				return err
			}
		}
	}
}

func everyoneAnswered(session domain.Session) bool {
	for _, p := range session.Players {
		if p.IsHost {
			continue
		}
		if !p.HasAnswered(session.CurrentQuestionIndex) {
			return false
		}
	}
	return true
}
