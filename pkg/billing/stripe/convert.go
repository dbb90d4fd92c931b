package stripe

import (
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

func customerFromStripe(cust *stripe.Customer) clubsync.RemoteCustomer {
	return clubsync.RemoteCustomer{
		ID:      cust.ID,
		Email:   cust.Email,
		Name:    cust.Name,
		Created: unixTime(cust.Created),
	}
}

// subscriptionFromStripe converts a Stripe subscription. Billing periods live on
// the items: the earliest item start and the latest item end bound the subscription.
func subscriptionFromStripe(sub *stripe.Subscription) *clubsync.RemoteSubscription {
	remote := &clubsync.RemoteSubscription{
		ID:                sub.ID,
		Status:            clubsync.SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Created:           unixTime(sub.Created),
	}
	if sub.Customer != nil {
		remote.CustomerID = sub.Customer.ID
	}

	if sub.Items == nil {
		return remote
	}

	var start, end int64
	for _, item := range sub.Items.Data {
		if item == nil {
			continue
		}
		if item.Price != nil && item.Price.ID != "" {
			remote.PriceIDs = append(remote.PriceIDs, item.Price.ID)
		}
		if item.CurrentPeriodStart > 0 && (start == 0 || item.CurrentPeriodStart < start) {
			start = item.CurrentPeriodStart
		}
		if item.CurrentPeriodEnd > end {
			end = item.CurrentPeriodEnd
		}
	}
	if start > 0 {
		t := unixTime(start)
		remote.CurrentPeriodStart = &t
	}
	if end > 0 {
		t := unixTime(end)
		remote.CurrentPeriodEnd = &t
	}
	return remote
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
