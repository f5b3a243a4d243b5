// Package sender orchestrates batch campaign sending: scheduling gate,
// account rotation, sequence advancement, delivery and bookkeeping.
package sender

import (
	"strings"
	"time"

	"outreach/models"
	"outreach/warmup"
)

// Mailbox providers recognized for provider-affinity matching.
var providerByDomain = map[string]string{
	"gmail.com":   "google",
	"outlook.com": "microsoft",
	"hotmail.com": "microsoft",
}

// Selection is the outcome of picking a sending account for one lead.
type Selection struct {
	Account *models.EmailAccount
	Cursor  int  // rotation cursor to persist after a non-sticky pick
	Sticky  bool // account reused from the lead's previous step
}

// SelectAccount picks an eligible sending account for a lead. Warmup and
// slow-ramp limits bound eligibility; provider affinity narrows the pool
// when enabled and a match exists; follow-up steps prefer the account that
// sent the previous step ("sticky sender"); otherwise the campaign's
// round-robin cursor decides.
func SelectAccount(campaign *models.Campaign, settings models.CampaignSettings, leadEmail string, step int, lastAccountID uint, now time.Time) *Selection {
	eligible := EligibleAccounts(campaign.Accounts, now)
	if len(eligible) == 0 {
		return nil
	}

	if settings.ProviderMatching {
		if provider := providerFor(leadEmail); provider != "" {
			var matching []*models.EmailAccount
			for _, account := range eligible {
				if providerFor(account.Email) == provider {
					matching = append(matching, account)
				}
			}
			if len(matching) > 0 {
				eligible = matching
			}
		}
	}

	if step > 1 && lastAccountID != 0 {
		for _, account := range eligible {
			if account.ID == lastAccountID {
				return &Selection{Account: account, Cursor: campaign.LastAccountIndex, Sticky: true}
			}
		}
	}

	idx := campaign.LastAccountIndex % len(eligible)
	return &Selection{
		Account: eligible[idx],
		Cursor:  (idx + 1) % len(eligible),
	}
}

// EligibleAccounts filters a campaign's pool down to active accounts with
// remaining quota for today.
func EligibleAccounts(pool []models.EmailAccount, now time.Time) []*models.EmailAccount {
	var eligible []*models.EmailAccount
	for i := range pool {
		account := &pool[i]
		if account.Status != models.AccountStatusActive {
			continue
		}
		if account.SentToday >= warmup.EffectiveDailyLimit(account, now) {
			continue
		}
		eligible = append(eligible, account)
	}
	return eligible
}

func providerFor(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return providerByDomain[strings.ToLower(email[at+1:])]
}
