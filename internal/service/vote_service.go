package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/canteen-voting/internal/model"
	"github.com/iliyamo/canteen-voting/internal/queue"
	"github.com/iliyamo/canteen-voting/internal/repository"
)

// publishTimeout bounds the background publish of a vote event.
const publishTimeout = 10 * time.Second

// VoteService casts and tallies votes.  Now and Location decide which
// voting period an operation belongs to.
type VoteService struct {
	DB        *sql.DB
	Users     *repository.UserRepo
	Votes     *repository.VoteRepo
	Cache     ResultsCache
	Publisher Publisher
	Now       func() time.Time
	Location  *time.Location
	Log       *logrus.Entry
}

// NewVoteService wires a service with no cache, no publisher and the wall
// clock.  Callers replace those fields as needed before first use.
func NewVoteService(db *sql.DB, users *repository.UserRepo, votes *repository.VoteRepo, loc *time.Location, log *logrus.Entry) *VoteService {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &VoteService{
		DB:        db,
		Users:     users,
		Votes:     votes,
		Cache:     NoopResultsCache{},
		Publisher: NoopPublisher{},
		Now:       time.Now,
		Location:  loc,
		Log:       log,
	}
}

// CurrentPeriod returns the voting period containing the service clock's now.
func (s *VoteService) CurrentPeriod() model.Period {
	return model.PeriodOf(s.Now(), s.Location)
}

// CastVote records voterID's vote for targetID in the current period.
//
// The existence check, voter and vendor lookups and the insert run in one
// transaction.  The (student, period) unique constraint is what actually
// prevents a second vote: a concurrent cast that slips past the check fails
// on insert and is reported as ErrAlreadyVoted like any other repeat.  An
// unknown voter is ErrInvalidInput.
func (s *VoteService) CastVote(ctx context.Context, voterID, targetID string) (model.Vote, error) {
	voterID = strings.TrimSpace(voterID)
	targetID = strings.TrimSpace(targetID)
	if voterID == "" {
		return model.Vote{}, fmt.Errorf("%w: voter id required", ErrInvalidInput)
	}
	if targetID == "" {
		return model.Vote{}, fmt.Errorf("%w: vendor id required", ErrInvalidInput)
	}
	if _, err := uuid.Parse(targetID); err != nil {
		return model.Vote{}, fmt.Errorf("%w: malformed vendor id", ErrInvalidInput)
	}

	now := s.Now()
	period := model.PeriodOf(now, s.Location)
	vote := model.Vote{
		ID:        uuid.NewString(),
		StudentID: voterID,
		VendorID:  targetID,
		Period:    period,
		CreatedAt: now.UTC().Truncate(time.Second),
	}
	var vendor model.User

	err := repository.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := s.Votes.FindByStudentTx(ctx, tx, voterID, period)
		switch {
		case err == nil:
			return ErrAlreadyVoted
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("check existing vote: %w", err)
		}

		if _, err := s.Users.GetByIDTx(ctx, tx, voterID); errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: unknown voter", ErrInvalidInput)
		} else if err != nil {
			return fmt.Errorf("resolve voter: %w", err)
		}

		vendor, err = s.Users.FindVendorTx(ctx, tx, targetID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTargetNotFound
		}
		if err != nil {
			return fmt.Errorf("resolve vendor: %w", err)
		}

		if err := s.Votes.InsertTx(ctx, tx, vote); err != nil {
			if errors.Is(err, repository.ErrDuplicateVote) {
				return ErrAlreadyVoted
			}
			return fmt.Errorf("insert vote: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Vote{}, s.classify(err)
	}

	s.afterCast(ctx, vote, vendor)
	return vote, nil
}

// afterCast drops the period's cached results and announces the vote.
// Neither step can fail the cast: the vote is already committed.
func (s *VoteService) afterCast(ctx context.Context, v model.Vote, vendor model.User) {
	log := s.Log.WithFields(logrus.Fields{
		"vote_id":   v.ID,
		"vendor_id": v.VendorID,
		"period":    string(v.Period),
	})
	if err := s.Cache.Invalidate(ctx, v.Period); err != nil {
		log.WithError(err).Warn("results cache invalidation failed")
	}

	ev := queue.VoteCastEvent{
		VoteID:     v.ID,
		StudentID:  v.StudentID,
		VendorID:   v.VendorID,
		VendorName: vendor.Name,
		Period:     string(v.Period),
		CastAt:     v.CreatedAt.UTC().Format(time.RFC3339),
	}
	pub := s.Publisher
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := pub.PublishVoteCast(pctx, ev); err != nil {
			log.WithError(err).Warn("publish vote event failed")
		}
	}()
}

// GetResults ranks vendors by votes received in period.  A zero period means
// the current one.  Percentages are rounded to two decimals; with no votes
// the list is empty.
func (s *VoteService) GetResults(ctx context.Context, period model.Period) (model.Results, error) {
	if period == "" {
		period = s.CurrentPeriod()
	} else if _, err := model.ParsePeriod(string(period)); err != nil {
		return model.Results{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if res, ok := s.Cache.Get(ctx, period); ok {
		return res, nil
	}
	// read before the tally so a cast committed meanwhile voids the Set
	version, verErr := s.Cache.Version(ctx, period)

	tallies, err := s.Votes.TallyByPeriod(ctx, period)
	if err != nil {
		return model.Results{}, s.classify(fmt.Errorf("tally votes: %w", err))
	}
	res := Rank(period, tallies)
	if verErr == nil {
		s.Cache.Set(ctx, res, version)
	}
	return res, nil
}

// Rank turns ordered tallies into results with percentages.
func Rank(period model.Period, tallies []model.VendorTally) model.Results {
	var total int64
	for _, t := range tallies {
		total += t.Votes
	}
	out := model.Results{Period: period, TotalVotes: total, Results: make([]model.Result, 0, len(tallies))}
	for _, t := range tallies {
		out.Results = append(out.Results, model.Result{
			VendorID:   t.VendorID,
			VendorName: t.VendorName,
			VoteCount:  t.Votes,
			Percentage: percentage(t.Votes, total),
		})
	}
	return out
}

func percentage(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)*10000/float64(total)) / 100
}

// CheckVoteStatus reports whether voterID has voted in the current period.
func (s *VoteService) CheckVoteStatus(ctx context.Context, voterID string) (model.VoteStatus, error) {
	if strings.TrimSpace(voterID) == "" {
		return model.VoteStatus{}, fmt.Errorf("%w: voter id required", ErrInvalidInput)
	}
	cv, err := s.Votes.StatusFor(ctx, voterID, s.CurrentPeriod())
	if errors.Is(err, repository.ErrNotFound) {
		return model.VoteStatus{HasVoted: false}, nil
	}
	if err != nil {
		return model.VoteStatus{}, s.classify(fmt.Errorf("vote status: %w", err))
	}
	return model.VoteStatus{HasVoted: true, Vote: &cv}, nil
}

// classify passes domain errors through and tags retryable store failures
// with ErrTransientStore.  Everything else is returned as is and treated as
// unexpected by callers.
func (s *VoteService) classify(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyVoted), errors.Is(err, ErrTargetNotFound), errors.Is(err, ErrInvalidInput):
		return err
	case repository.IsTransient(err):
		return fmt.Errorf("%w: %w", ErrTransientStore, err)
	}
	return err
}
