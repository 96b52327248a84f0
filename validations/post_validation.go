package validations

import (
	"context"
	"errors"
	"time"

	domainPost "github.com/AzielCF/az-grouppost/domains/post"
	pkgError "github.com/AzielCF/az-grouppost/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateCreatePost(ctx context.Context, request domainPost.CreatePostRequest, now time.Time) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.GroupID, validation.Required),
		validation.Field(&request.Title, validation.Required),
		validation.Field(&request.Text, validation.Required),
		validation.Field(&request.Visibility, validation.In(domainPost.VisibilityPublic, domainPost.VisibilityGroup)),
		validation.Field(&request.ScheduledAt, validation.Required),
		validation.Field(&request.Recurrence, validation.By(validateRecurrence)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	if request.Recurrence == nil && !request.ScheduledAt.After(now) {
		return pkgError.ValidationError("scheduledAt: must be in the future.")
	}
	return nil
}

func validateRecurrence(value any) error {
	var rec domainPost.Recurrence
	switch v := value.(type) {
	case *domainPost.Recurrence:
		if v == nil {
			return nil
		}
		rec = *v
	case domainPost.Recurrence:
		rec = v
	default:
		return nil
	}
	switch rec.Type {
	case domainPost.RecurrenceDaily, domainPost.RecurrenceMonthly:
		return nil
	case domainPost.RecurrenceWeekly:
		if len(rec.Days) == 0 {
			return errors.New("weekly recurrence needs at least one day")
		}
		for _, d := range rec.Days {
			if d < 0 || d > 6 {
				return errors.New("days must be between 0 (Sunday) and 6 (Saturday)")
			}
		}
		return nil
	default:
		return errors.New("type must be daily, weekly or monthly")
	}
}
