package lifecycle

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/events"
	"dopahiyaa/api_leads/internal/models"
	"dopahiyaa/api_leads/internal/notify"
	"dopahiyaa/pkg/logging"
)

const maxMessageLength = 2000

// storeErr passes typed errors through and marks anything else as a store outage.
func storeErr(err error) error {
	if _, ok := errs.As(err); ok {
		return err
	}
	return errs.ErrStoreUnavailable.Wrap(err)
}

// CreateInquiry records a buyer's interest in a listing. Owner notification
// and allocation run in the background; their failures never reach the buyer.
func (c *Coordinator) CreateInquiry(ctx context.Context, buyerID, listingID, message string) (models.Lead, error) {
	buyerID, listingID = strings.TrimSpace(buyerID), strings.TrimSpace(listingID)
	message = strings.TrimSpace(message)
	switch {
	case buyerID == "":
		return models.Lead{}, errs.Invalid("buyerId is required")
	case listingID == "":
		return models.Lead{}, errs.Invalid("listingId is required")
	case utf8.RuneCountInString(message) > maxMessageLength:
		return models.Lead{}, errs.Invalid("message must be at most %d characters", maxMessageLength)
	}

	lead := models.Lead{
		ID:        uuid.NewString(),
		ListingID: listingID,
		BuyerID:   buyerID,
		Message:   message,
		Status:    models.LeadStatusNew,
		CreatedAt: c.now().UTC(),
	}
	log := c.Logger.WithFields(logging.Fields{"lead_id": lead.ID, "listing_id": listingID, "buyer_id": buyerID})

	if err := c.Store.CreateLead(ctx, lead); err != nil {
		err = storeErr(err)
		c.Metrics.IncInquiry(statusLabel(err))
		if errors.Is(err, errs.ErrDuplicateInquiry) {
			log.Info("Duplicate inquiry rejected")
		} else if errs.KindOf(err) == errs.KindDownstream {
			log.WithError(err).Error("Failed to create lead")
		}
		return models.Lead{}, err
	}
	c.Metrics.IncInquiry("success")

	listing, err := c.Store.GetListing(ctx, listingID)
	if err != nil {
		// The lead stays; allocation can be retried out of band.
		log.WithError(err).Warn("Listing unavailable after inquiry, skipping allocation")
		return lead, nil
	}

	lead.Attributes = c.attributesFor(ctx, listing)
	if err := c.Store.FreezeLeadAttributes(ctx, lead.ID, lead.Attributes); err != nil {
		log.WithError(err).Error("Failed to freeze lead attributes, skipping allocation")
		return lead, nil
	}
	log.WithFields(logging.Fields{
		"city":      lead.Attributes.City,
		"region":    lead.Attributes.Region,
		"brand":     lead.Attributes.Brand,
		"lead_type": lead.Attributes.LeadType,
	}).Info("Lead created")

	c.background(ctx, "notify_listing_owner", func(ctx context.Context) error {
		return c.notifyListingOwner(ctx, lead, listing)
	})
	c.background(ctx, "allocate_lead", func(ctx context.Context) error {
		return c.allocate(ctx, lead)
	})
	c.background(ctx, "publish_lead_created", func(ctx context.Context) error {
		c.publish(ctx, events.Event{
			Type:   events.LeadCreated,
			LeadID: lead.ID,
			Data:   map[string]any{"listing_id": lead.ListingID, "attributes": lead.Attributes},
		})
		return nil
	})
	return lead, nil
}

func (c *Coordinator) attributesFor(ctx context.Context, listing models.Listing) models.LeadAttributes {
	attrs := models.LeadAttributes{
		City:     strings.TrimSpace(listing.City),
		Brand:    strings.TrimSpace(listing.Make),
		Model:    strings.TrimSpace(listing.Model),
		LeadType: strings.TrimSpace(listing.LeadType),
	}
	if attrs.LeadType == "" {
		attrs.LeadType = models.DefaultLeadType
	}
	if attrs.City != "" {
		region, err := c.Store.ResolveRegion(ctx, attrs.City)
		if err != nil {
			c.Logger.WithError(err).WithField("city", attrs.City).Warn("Region lookup failed")
		}
		attrs.Region = region
	}
	return attrs
}

func (c *Coordinator) notifyListingOwner(ctx context.Context, lead models.Lead, listing models.Listing) error {
	if c.Notifier == nil || listing.SellerID == "" {
		return nil
	}
	buyerName := "Someone"
	if buyer, err := c.Store.GetProfile(ctx, lead.BuyerID); err == nil {
		buyerName = buyer.DisplayName(buyerName)
	}
	c.Notifier.Notify(ctx, notify.Message{
		Channel:   notify.ChannelInApp,
		Recipient: listing.SellerID,
		UserID:    listing.SellerID,
		Template:  notify.TemplateLeadNew,
		Params:    []string{buyerName, listing.Title},
	})
	return nil
}

// allocate runs the matcher and tells every recipient about the lead.
func (c *Coordinator) allocate(ctx context.Context, lead models.Lead) error {
	if c.Allocator == nil {
		return nil
	}
	res, err := c.Allocator.Allocate(ctx, lead)
	if err != nil {
		return err
	}
	if res.AlreadyAttempted || len(res.Allocated) == 0 {
		return nil
	}

	dealerIDs := make([]string, 0, len(res.Allocated))
	for _, a := range res.Allocated {
		dealerIDs = append(dealerIDs, a.DealerID)
		c.publish(ctx, events.Event{
			Type:     events.LeadAllocated,
			LeadID:   lead.ID,
			DealerID: a.DealerID,
			Data:     map[string]any{"subscription_id": a.SubscriptionID},
		})
		if c.Notifier != nil {
			c.Notifier.Notify(ctx, notify.Message{
				Channel:   notify.ChannelInApp,
				Recipient: a.DealerID,
				UserID:    a.DealerID,
				Template:  notify.TemplateLeadAllocated,
				Params:    []string{lead.Attributes.LeadType, cityOrAnywhere(lead.Attributes.City)},
			})
		}
	}
	c.pushFeed(ctx, feedItem(events.LeadAllocated, lead), dealerIDs...)
	return nil
}

func cityOrAnywhere(city string) string {
	if city == "" {
		return "your area"
	}
	return city
}
