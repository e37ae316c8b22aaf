package announce

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
)

var (
	NowFunc = time.Now // mockable

	ErrNotFound = core.NewNotFoundError("announcement not found")
)

type (
	Repository interface {
		CreateAnnouncement(ctx context.Context, ann Announcement) (Announcement, error)
		GetAnnouncementByID(ctx context.Context, id string) (Announcement, error)
		// QueryAnnouncements returns announcements newest-first by default.
		QueryAnnouncements(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Announcement, error)
		DeleteAnnouncement(ctx context.Context, id string) error
	}

	// RecipientDirectory resolves an audience to email addresses.
	RecipientDirectory interface {
		AudienceEmails(ctx context.Context, aud Audience) ([]mail.Address, error)
	}

	Service struct {
		repo       Repository
		recipients RecipientDirectory
		mailSvc    core.EmailService
	}
)

func NewService(repo Repository, recipients RecipientDirectory, mailSvc core.EmailService) *Service {
	return &Service{repo: repo, recipients: recipients, mailSvc: mailSvc}
}

// Create publishes an announcement, optionally fanning it out by email.
// The email fan-out is best-effort: a delivery problem never fails the
// publish.
func (svc *Service) Create(ctx context.Context, na NewAnnouncement, createdBy string) (Announcement, error) {
	ann, err := svc.repo.CreateAnnouncement(ctx, Announcement{
		ID:        uuid.New().String(),
		Title:     na.Title,
		Body:      na.Body,
		Audience:  na.Audience,
		CreatedBy: createdBy,
		CreatedAt: NowFunc().UTC(),
	})
	if err != nil {
		return Announcement{}, err
	}

	if na.Notify && svc.mailSvc != nil && svc.recipients != nil {
		if to, rErr := svc.recipients.AudienceEmails(ctx, ann.Audience); rErr == nil && len(to) > 0 {
			svc.mailSvc.SendMessages(&core.EmailMessage{
				To:      to,
				Subject: ann.Title,
				BodyStr: ann.Body,
			})
		}
	}
	return ann, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Announcement, error) {
	return svc.repo.GetAnnouncementByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Announcement, error) {
	return svc.repo.QueryAnnouncements(ctx, filter, ordering)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteAnnouncement(ctx, id)
}
