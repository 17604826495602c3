package chat

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/h-like/sleeprism-chat/databases"
	"github.com/h-like/sleeprism-chat/models"
)

// BlockService keeps the directed blocker -> blocked pairs
type BlockService struct {
	store databases.ChatStore
}

// NewBlockService creates a block registry backed by store
func NewBlockService(store databases.ChatStore) *BlockService {
	return &BlockService{store: store}
}

// Block records that blockerID blocked blockedID
func (b *BlockService) Block(ctx context.Context, blockerID, blockedID uint) (*models.ChatBlockResponse, error) {
	if blockerID == blockedID {
		return nil, fmt.Errorf("%w: cannot block yourself", ErrInvalidState)
	}
	blocker, err := b.store.Users().FindByID(ctx, blockerID)
	if err != nil {
		return nil, notFound(err, "user", blockerID)
	}
	blocked, err := b.store.Users().FindByID(ctx, blockedID)
	if err != nil {
		return nil, notFound(err, "user", blockedID)
	}

	exists, err := b.store.Blocks().Exists(ctx, blockerID, blockedID)
	if err != nil {
		return nil, fmt.Errorf("failed to check block: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: user %d is already blocked", ErrConflict, blockedID)
	}

	block := &models.ChatBlock{BlockerID: blockerID, BlockedID: blockedID}
	if err := b.store.Blocks().Create(ctx, block); err != nil {
		if errors.Is(err, databases.ErrDuplicate) {
			return nil, fmt.Errorf("%w: user %d is already blocked", ErrConflict, blockedID)
		}
		return nil, fmt.Errorf("failed to create block: %w", err)
	}
	block.Blocker = *blocker
	block.Blocked = *blocked

	zap.S().Infow("user blocked", "userId", blockerID, "blockedUserId", blockedID)
	resp := models.NewChatBlockResponse(*block)
	return &resp, nil
}

// Unblock removes an existing block
func (b *BlockService) Unblock(ctx context.Context, blockerID, blockedID uint) error {
	block, err := b.store.Blocks().Find(ctx, blockerID, blockedID)
	if errors.Is(err, databases.ErrNotFound) {
		return fmt.Errorf("%w: user %d is not blocked", ErrNotFound, blockedID)
	}
	if err != nil {
		return fmt.Errorf("failed to load block: %w", err)
	}
	if err := b.store.Blocks().Delete(ctx, block.ID); err != nil {
		return notFound(err, "block", block.ID)
	}
	zap.S().Infow("user unblocked", "userId", blockerID, "blockedUserId", blockedID)
	return nil
}

// IsBlockedEitherWay is true when either user has blocked the other
func (b *BlockService) IsBlockedEitherWay(ctx context.Context, userA, userB uint) (bool, error) {
	return b.store.Blocks().ExistsEitherWay(ctx, userA, userB)
}

// HasBlocked is true when blockerID has blocked blockedID
func (b *BlockService) HasBlocked(ctx context.Context, blockerID, blockedID uint) (bool, error) {
	return b.store.Blocks().Exists(ctx, blockerID, blockedID)
}

// ListBlocked returns the users blockerID has blocked, newest first
func (b *BlockService) ListBlocked(ctx context.Context, blockerID uint) ([]models.ChatBlockResponse, error) {
	blocks, err := b.store.Blocks().FindByBlocker(ctx, blockerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks of user %d: %w", blockerID, err)
	}
	out := make([]models.ChatBlockResponse, 0, len(blocks))
	for _, block := range blocks {
		out = append(out, models.NewChatBlockResponse(block))
	}
	return out, nil
}
