// Package admission decides whether an incoming challenge is accepted.
package admission

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/park285/Cheese-Lichess-bridge/internal/config"
	"github.com/park285/Cheese-Lichess-bridge/internal/lichess"
	"go.uber.org/zap"
)

// ErrMalformedChallenge wraps every MalformedError.
var ErrMalformedChallenge = errors.New("malformed challenge")

// Malformed enumerates the payload shapes that cannot be evaluated.
type Malformed int

const (
	MissingID Malformed = iota + 1
	MissingChallenger
	MissingVariant
	MissingTimeControl
	MissingClockFields
)

func (m Malformed) String() string {
	switch m {
	case MissingID:
		return "missing id"
	case MissingChallenger:
		return "missing challenger"
	case MissingVariant:
		return "missing variant"
	case MissingTimeControl:
		return "missing time control"
	case MissingClockFields:
		return "missing clock limit or increment"
	default:
		return fmt.Sprintf("malformed(%d)", int(m))
	}
}

type MalformedError struct {
	Kind Malformed
}

func (e *MalformedError) Error() string { return "malformed challenge: " + e.Kind.String() }

func (e *MalformedError) Unwrap() error { return ErrMalformedChallenge }

// Reason is one failed admission predicate.
type Reason string

const (
	ReasonOccupied       Reason = "in_game"
	ReasonClosed         Reason = "not_open"
	ReasonVariant        Reason = "variant"
	ReasonNotWhitelisted Reason = "not_whitelisted"
	ReasonBlacklisted    Reason = "blacklisted"
	ReasonBot            Reason = "bot"
	ReasonNoClock        Reason = "no_clock"
	ReasonTimeControl    Reason = "time_control"
	ReasonMalformed      Reason = "malformed"
)

type Decision struct {
	Accept  bool
	Reasons []Reason
	// Err is set when the payload could not be evaluated.
	Err error
}

// Validate reports the first missing piece of ch, or nil.
func Validate(ch *lichess.Challenge) error {
	switch {
	case ch == nil || strings.TrimSpace(ch.ID) == "":
		return &MalformedError{Kind: MissingID}
	case ch.Challenger == nil:
		return &MalformedError{Kind: MissingChallenger}
	case ch.Variant == nil:
		return &MalformedError{Kind: MissingVariant}
	case ch.TimeControl == nil:
		return &MalformedError{Kind: MissingTimeControl}
	case ch.TimeControl.Type == lichess.TimeControlClock &&
		(ch.TimeControl.Limit == nil || ch.TimeControl.Increment == nil):
		return &MalformedError{Kind: MissingClockFields}
	}
	return nil
}

// Decide evaluates every predicate; each failure is logged so the operator
// sees all reasons at once. A malformed payload is a decline.
func Decide(ch *lichess.Challenge, cfg *config.Config, occupied bool, logger *zap.Logger) Decision {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := Validate(ch); err != nil {
		logger.Warn("challenge_malformed", zap.Error(err))
		return Decision{Reasons: []Reason{ReasonMalformed}, Err: err}
	}

	log := logger.With(zap.String("challenge_id", ch.ID), zap.String("challenger", ch.Challenger.Name))
	log.Info("challenge_incoming", zap.Bool("rated", ch.Rated), zap.String("variant", ch.Variant.Key))

	var reasons []Reason
	fail := func(r Reason, fields ...zap.Field) {
		reasons = append(reasons, r)
		log.Info("challenge_rejected_by", append([]zap.Field{zap.String("reason", string(r))}, fields...)...)
	}

	if occupied {
		fail(ReasonOccupied)
	}
	if !cfg.Open {
		fail(ReasonClosed)
	}
	if !slices.Contains(cfg.Variants, ch.Variant.Key) {
		fail(ReasonVariant, zap.String("variant", ch.Variant.Key))
	}
	if len(cfg.Whitelist) > 0 && !containsName(cfg.Whitelist, ch.Challenger.Name) {
		fail(ReasonNotWhitelisted)
	}
	if containsName(cfg.Blacklist, ch.Challenger.Name) {
		fail(ReasonBlacklisted)
	}
	if ch.Challenger.Title == "BOT" && !cfg.AllowBots {
		fail(ReasonBot)
	}

	tc := ch.TimeControl
	if tc.Type != lichess.TimeControlClock {
		fail(ReasonNoClock, zap.String("type", tc.Type))
	} else {
		limit, inc := *tc.Limit, *tc.Increment
		if limit < cfg.MinTCSecs || limit > cfg.MaxTCSecs || inc < cfg.MinIncSecs || inc > cfg.MaxIncSecs {
			fail(ReasonTimeControl, zap.Int("limit", limit), zap.Int("increment", inc))
		}
	}

	return Decision{Accept: len(reasons) == 0, Reasons: reasons}
}

// 계정명은 대소문자 구분 없이 비교
func containsName(list []string, name string) bool {
	for _, n := range list {
		if strings.EqualFold(strings.TrimSpace(n), name) {
			return true
		}
	}
	return false
}
