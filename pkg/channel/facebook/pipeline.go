package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fbgate/pkg/bot"
	"fbgate/pkg/bus"
	"fbgate/pkg/config"
	"fbgate/pkg/profile"
)

const (
	defaultLocale = "en_GB"

	// actionTimeout bounds the detached sender-action calls, which outlive
	// the delivery that spawned them.
	actionTimeout = 10 * time.Second
)

// Call carries one delivery through the pipeline steps.
type Call struct {
	Tenant  string
	Request bot.Request
	Profile *profile.Record
}

// Pipeline processes queued webhook deliveries: translate the batch, fire
// sender actions, capture the sender profile, consult the engine, and send
// the translated replies.
type Pipeline struct {
	tenants  config.TenantSource
	engine   bot.Engine
	sender   *Sender
	profiles profile.Repository
	log      *slog.Logger
}

// NewPipeline wires the pipeline. profiles may be nil to disable the
// sender-info step.
func NewPipeline(tenants config.TenantSource, engine bot.Engine, sender *Sender, profiles profile.Repository, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		tenants:  tenants,
		engine:   engine,
		sender:   sender,
		profiles: profiles,
		log:      log.With("component", "facebook.pipeline"),
	}
}

// Process runs the full pipeline for one queued delivery. The HTTP caller has
// already been acked, so errors surface only to the worker's log and the
// event bus.
func (p *Pipeline) Process(ctx context.Context, delivery bus.Delivery) error {
	tenant, err := p.tenants.Tenant(delivery.Tenant)
	if err != nil {
		return fmt.Errorf("resolve tenant: %w", err)
	}

	var batch WebhookRequest
	if err := json.Unmarshal(delivery.Payload, &batch); err != nil {
		return fmt.Errorf("decode delivery batch: %w", err)
	}
	p.warnDroppedEvents(delivery.Tenant, &batch)

	locale := tenant.Locale
	if locale == "" {
		locale = defaultLocale
	}

	request, err := TranslateRequest(&batch, locale)
	if err != nil {
		return fmt.Errorf("translate request: %w", err)
	}

	call := &Call{Tenant: delivery.Tenant, Request: request}

	p.dispatchSenderActions(tenant, request.SenderID)
	p.attachSenderInfo(ctx, tenant, call)

	responses, err := p.engine.Analyse(ctx, delivery.Tenant, request)
	if err != nil {
		return fmt.Errorf("analyse request: %w", err)
	}

	messages, skipped := TranslateResponses(responses, request.SenderID)
	for _, kind := range skipped {
		p.log.Warn("Dropping response of unsupported kind",
			"tenant", delivery.Tenant,
			"kind", string(kind))
	}
	if len(messages) == 0 {
		return nil
	}

	// Resolve again so replies go out with current credentials even if the
	// tenant was updated while the engine ran.
	tenant, err = p.tenants.Tenant(delivery.Tenant)
	if err != nil {
		return fmt.Errorf("resolve tenant for send: %w", err)
	}

	if err := p.sender.Send(ctx, tenant.Credentials(), messages); err != nil {
		return fmt.Errorf("deliver responses: %w", err)
	}

	return nil
}

// warnDroppedEvents logs batch entries and events beyond the first, which the
// translator ignores.
func (p *Pipeline) warnDroppedEvents(tenantName string, batch *WebhookRequest) {
	if len(batch.Entry) > 1 {
		p.log.Warn("Delivery batch has multiple entries, only the first is processed",
			"tenant", tenantName,
			"entries", len(batch.Entry))
	}
	if len(batch.Entry) > 0 && len(batch.Entry[0].Messaging) > 1 {
		p.log.Warn("Delivery entry has multiple events, only the first is processed",
			"tenant", tenantName,
			"events", len(batch.Entry[0].Messaging))
	}
}

// dispatchSenderActions fires mark_seen, plus typing_on when auto reply is
// suspended, on a detached goroutine. Actions are user-facing hints only;
// failures are logged and never stall the delivery.
func (p *Pipeline) dispatchSenderActions(tenant config.TenantConfig, senderID string) {
	actions := []string{ActionMarkSeen}
	if tenant.SuspendAutoReply {
		actions = append(actions, ActionTypingOn)
	}

	credentials := tenant.Credentials()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		var wg sync.WaitGroup
		for _, action := range actions {
			wg.Add(1)
			go func(action string) {
				defer wg.Done()
				if err := p.sender.SendAction(ctx, credentials, senderID, action); err != nil {
					p.log.Warn("Sender action failed",
						"action", action,
						"sender_id", senderID,
						"error", err)
				}
			}(action)
		}
		wg.Wait()
	}()
}

// attachSenderInfo fetches the sender's Graph profile and stores a record for
// this event. There is no cross-event cache: every inbound event fetches and
// creates anew, only the per-call attachment is checked. Best effort: a Graph
// or store failure is logged and the delivery continues without profile data.
func (p *Pipeline) attachSenderInfo(ctx context.Context, tenant config.TenantConfig, call *Call) {
	if p.profiles == nil || call.Profile != nil {
		return
	}

	fetched, err := p.sender.FetchProfile(ctx, tenant.Credentials(), call.Request.SenderID)
	if err != nil {
		p.log.Warn("Profile fetch failed",
			"tenant", call.Tenant,
			"sender_id", call.Request.SenderID,
			"error", err)
		return
	}

	created, err := p.profiles.Create(ctx, profile.Record{
		SenderID:   call.Request.SenderID,
		FirstName:  fetched.FirstName,
		LastName:   fetched.LastName,
		MiddleName: fetched.MiddleName,
		Tenant:     call.Tenant,
		Messenger:  channelName,
	})
	if err != nil {
		p.log.Warn("Profile store failed",
			"tenant", call.Tenant,
			"sender_id", call.Request.SenderID,
			"error", err)
		return
	}

	call.Profile = &created
	p.log.Info("Sender profile captured",
		"tenant", call.Tenant,
		"sender_id", call.Request.SenderID)
}
