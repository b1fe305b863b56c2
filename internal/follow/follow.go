// Package follow maintains the directed follow graph between accounts.
package follow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sl "account_service/internal/lib/logger"
	"account_service/internal/models"
	"account_service/internal/storage"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrForbidden       = errors.New("forbidden")
)

type Service struct {
	log   *slog.Logger
	graph Graph
	accs  AccountProvider
}

type Graph interface {
	AddFollowEdge(ctx context.Context, followerID, targetID string) error
	RemoveFollowEdge(ctx context.Context, followerID, targetID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, targetID string) (bool, error)
	Followers(ctx context.Context, targetID string) ([]models.Account, error)
}

type AccountProvider interface {
	AccountByName(ctx context.Context, name string) (models.Account, error)
}

func New(log *slog.Logger, graph Graph, accounts AccountProvider) *Service {
	return &Service{
		log:   log,
		graph: graph,
		accs:  accounts,
	}
}

// Follow creates the actor -> target edge. Following an already followed
// account converges to the same single edge without error.
func (s *Service) Follow(ctx context.Context, actor models.Actor, targetName string) error {
	const op = "follow.Follow"

	log := s.log.With(slog.String("op", op))

	if actor.Anonymous() {
		return ErrForbidden
	}

	target, err := s.target(ctx, targetName)
	if err != nil {
		return err
	}

	if err := s.graph.AddFollowEdge(ctx, actor.ID, target.ID); err != nil {
		log.Error("failed to add follow edge", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("following", slog.String("target", target.ID))

	return nil
}

// Unfollow removes the edge if present. The returned flag distinguishes
// "removed" from "was not following"; the latter is not an error.
func (s *Service) Unfollow(ctx context.Context, actor models.Actor, targetName string) (bool, error) {
	const op = "follow.Unfollow"

	log := s.log.With(slog.String("op", op))

	if actor.Anonymous() {
		return false, ErrForbidden
	}

	target, err := s.target(ctx, targetName)
	if err != nil {
		return false, err
	}

	removed, err := s.graph.RemoveFollowEdge(ctx, actor.ID, target.ID)
	if err != nil {
		log.Error("failed to remove follow edge", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if removed {
		log.Info("unfollowed", slog.String("target", target.ID))
	}

	return removed, nil
}

// IsFollowing reports whether the actor currently follows the target.
func (s *Service) IsFollowing(ctx context.Context, actor models.Actor, targetName string) (bool, error) {
	const op = "follow.IsFollowing"

	if actor.Anonymous() {
		return false, nil
	}

	target, err := s.target(ctx, targetName)
	if err != nil {
		return false, err
	}

	following, err := s.graph.IsFollowing(ctx, actor.ID, target.ID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return following, nil
}

// Followers enumerates who follows the target. Restricted to sysadmins and
// the target account itself.
func (s *Service) Followers(ctx context.Context, actor models.Actor, targetName string) ([]models.Account, error) {
	const op = "follow.Followers"

	target, err := s.target(ctx, targetName)
	if err != nil {
		return nil, err
	}

	if !actor.Owns(target.ID) {
		return nil, ErrForbidden
	}

	followers, err := s.graph.Followers(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return followers, nil
}

func (s *Service) target(ctx context.Context, name string) (models.Account, error) {
	acc, err := s.accs.AccountByName(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return models.Account{}, ErrAccountNotFound
		}

		return models.Account{}, err
	}

	if acc.State == models.StateDeleted {
		return models.Account{}, ErrAccountNotFound
	}

	return acc, nil
}
