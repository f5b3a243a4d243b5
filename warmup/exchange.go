package warmup

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"outreach/models"
	"outreach/store"
	"outreach/utils"
)

// ErrNotEnoughAccounts is returned when the internal exchange has fewer
// than two warmup-enabled accounts to work with.
var ErrNotEnoughAccounts = errors.New("warmup exchange requires at least two warmup-enabled accounts")

// Headers identifying warmup traffic so mailbox maintenance can find it.
const (
	HeaderWarmup   = "X-Warmup"
	HeaderWarmupID = "X-Warmup-ID"

	// Auto-replies carry the original warmup id with this prefix so the
	// engine never replies to its own reply chain.
	replyIDPrefix = "re-"
)

// ExchangeReport summarizes one warmup cycle.
type ExchangeReport struct {
	AccountsProcessed int
	EmailsSent        int
	Errors            int
}

// Engine performs the warmup email exchanges that build sender reputation.
type Engine struct {
	store  store.Store
	mailer utils.Mailer

	now func() time.Time
	log *logrus.Entry
}

func NewEngine(st store.Store, mailer utils.Mailer) *Engine {
	return &Engine{
		store:  st,
		mailer: mailer,
		now:    time.Now,
		log:    logrus.WithField("component", "warmup"),
	}
}

// RunExchange sends templated filler mail between the system's own
// warmup-enabled accounts, bounded by each account's remaining ramp quota.
func (e *Engine) RunExchange() (*ExchangeReport, error) {
	accounts, err := e.store.WarmupAccounts()
	if err != nil {
		return nil, err
	}
	if len(accounts) < 2 {
		return nil, ErrNotEnoughAccounts
	}

	report := &ExchangeReport{}
	for i := range accounts {
		account := &accounts[i]
		peers := otherAccounts(accounts, account.ID)
		e.exchangeFor(account, peers, models.WarmupActionSend, report)
		report.AccountsProcessed++
	}
	return report, nil
}

// RunPoolExchange exchanges mail between pool opt-in accounts, preferring
// peers on other domains to mimic authentic cross-organization traffic.
func (e *Engine) RunPoolExchange() (*ExchangeReport, error) {
	accounts, err := e.store.PoolAccounts()
	if err != nil {
		return nil, err
	}
	if len(accounts) < 2 {
		return nil, ErrNotEnoughAccounts
	}

	report := &ExchangeReport{}
	for i := range accounts {
		account := &accounts[i]
		peers := orderPeersAcrossDomains(account, otherAccounts(accounts, account.ID))
		e.exchangeFor(account, peers, models.WarmupActionPoolSend, report)
		report.AccountsProcessed++
	}
	return report, nil
}

func (e *Engine) exchangeFor(account *models.EmailAccount, peers []models.EmailAccount, action string, report *ExchangeReport) {
	if len(peers) == 0 {
		return
	}

	quota := RemainingWarmupQuota(account)
	if quota > maxWarmupPerRun {
		quota = maxWarmupPerRun
	}

	log := e.log.WithField("account", account.Email)
	for n := 0; n < quota; n++ {
		peer := peers[n%len(peers)]
		if err := e.sendWarmupEmail(account, &peer, action); err != nil {
			log.WithError(err).Warn("warmup send failed")
			report.Errors++
			if adjErr := e.store.AdjustReputation(account.ID, -reputationLoss); adjErr != nil {
				log.WithError(adjErr).Error("failed to lower reputation")
			}
			continue
		}
		report.EmailsSent++
		account.WarmupSentToday++
	}
}

func (e *Engine) sendWarmupEmail(from *models.EmailAccount, to *models.EmailAccount, action string) error {
	warmupID := uuid.New().String()
	subject, body := generateWarmupContent(from.FromName)

	msg := &utils.OutgoingMessage{
		To:       to.Email,
		Subject:  subject,
		TextBody: body,
		Headers: map[string]string{
			HeaderWarmup:     "true",
			HeaderWarmupID:   warmupID,
			"X-Mailer":       "outreach-warmup/1.0",
			"Auto-Submitted": "auto-generated",
		},
	}

	messageID, err := e.mailer.Send(from, msg)
	if err != nil {
		return err
	}

	if err := e.store.IncrementWarmupSent(from.ID); err != nil {
		return err
	}
	if err := e.store.LogWarmupAction(&models.WarmupLog{
		WarmupID:  warmupID,
		AccountID: from.ID,
		Action:    action,
		PeerEmail: to.Email,
		MessageID: messageID,
	}); err != nil {
		return err
	}
	if err := e.store.LogWarmupAction(&models.WarmupLog{
		WarmupID:  warmupID,
		AccountID: to.ID,
		Action:    models.WarmupActionReceive,
		PeerEmail: from.Email,
		MessageID: messageID,
	}); err != nil {
		return err
	}
	return e.store.AdjustReputation(from.ID, reputationGain)
}

// RunDailyReset zeroes per-day counters and advances every warmup
// account's ramp day. Invoked once per day by the scheduler.
func (e *Engine) RunDailyReset() error {
	if err := e.store.ResetDailyCounters(); err != nil {
		return err
	}
	e.log.Info("daily counters reset")
	return nil
}

func otherAccounts(accounts []models.EmailAccount, selfID uint) []models.EmailAccount {
	var out []models.EmailAccount
	for _, a := range accounts {
		if a.ID != selfID {
			out = append(out, a)
		}
	}
	return out
}

// orderPeersAcrossDomains interleaves peers so the exchange round-robins
// across distinct domains before repeating one, with the account's own
// domain considered last.
func orderPeersAcrossDomains(account *models.EmailAccount, peers []models.EmailAccount) []models.EmailAccount {
	byDomain := make(map[string][]models.EmailAccount)
	var domains []string
	for _, p := range peers {
		domain := strings.ToLower(p.Domain())
		if _, seen := byDomain[domain]; !seen {
			domains = append(domains, domain)
		}
		byDomain[domain] = append(byDomain[domain], p)
	}

	own := strings.ToLower(account.Domain())
	sort.SliceStable(domains, func(i, j int) bool {
		if (domains[i] == own) != (domains[j] == own) {
			return domains[j] == own
		}
		return domains[i] < domains[j]
	})

	var ordered []models.EmailAccount
	for round := 0; len(ordered) < len(peers); round++ {
		for _, domain := range domains {
			bucket := byDomain[domain]
			if round < len(bucket) {
				ordered = append(ordered, bucket[round])
			}
		}
	}
	return ordered
}
