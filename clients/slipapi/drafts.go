package slipapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/betslip/internal/models"
)

// CreateDraft creates a new empty draft resource and returns it.
func (c *Client) CreateDraft(ctx context.Context) (*models.Draft, error) {
	body, err := c.Post(ctx, DraftsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}

	var draft models.Draft
	if err := json.Unmarshal(body, &draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w, raw response: %s", err, string(body))
	}

	return &draft, nil
}

// PatchDraft applies a single add/remove/update mutation to the draft.
// Stale-resource failures are reported as ErrStaleDraft.
func (c *Client) PatchDraft(ctx context.Context, draftID uuid.UUID, patch models.DraftPatch) (*models.Draft, error) {
	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s", DraftsEndpoint, draftID)
	body, err := c.Patch(ctx, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to patch draft: %w", classify(err))
	}

	var draft models.Draft
	if err := json.Unmarshal(body, &draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w, raw response: %s", err, string(body))
	}

	return &draft, nil
}

// DeleteDraft removes the draft resource. Used best-effort when the working
// set empties; callers may ignore the error.
func (c *Client) DeleteDraft(ctx context.Context, draftID uuid.UUID) error {
	endpoint := fmt.Sprintf("%s/%s", DraftsEndpoint, draftID)
	if _, err := c.Delete(ctx, endpoint); err != nil {
		return fmt.Errorf("failed to delete draft: %w", classify(err))
	}
	return nil
}

// SubmitDraft locks prices and finalizes the draft. The returned record is
// immutable; its selections carry the server-locked prices.
func (c *Client) SubmitDraft(ctx context.Context, draftID uuid.UUID) (*models.SubmittedRecord, error) {
	endpoint := fmt.Sprintf("%s/%s/submit", DraftsEndpoint, draftID)
	body, err := c.Post(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to submit draft: %w", classify(err))
	}

	var record models.SubmittedRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submitted record: %w, raw response: %s", err, string(body))
	}

	return &record, nil
}
