package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/dispatch"
	"github.com/dukex/autoflow/pkg/mailbox"
	"github.com/dukex/autoflow/pkg/registry"
	"github.com/dukex/autoflow/pkg/schedule"
	"github.com/dukex/autoflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// CronRunner runs one pass of the cron evaluator.
type CronRunner interface {
	RunCron(ctx context.Context, payload any) (schedule.CronRunResult, error)
}

// MailboxPoller runs one pass over every email-triggered workflow.
type MailboxPoller interface {
	PollAll(ctx context.Context) (mailbox.PollSummary, error)
}

// Dependencies are the collaborators behind the API.
type Dependencies struct {
	Workflows *services.Workflow
	Triggers  *services.Trigger
	// Runner executes jobs delivered by a push queue.
	Runner    dispatch.Handler
	Cron      CronRunner
	Mailbox   MailboxPoller
	Dialer    mailbox.Dialer
	Validator *validator.Validate
	Registry  *registry.Registry
}

type APIHandlers struct {
	workflowService *services.Workflow
	triggerService  *services.Trigger
	runner          dispatch.Handler
	cron            CronRunner
	mailbox         MailboxPoller
	dialer          mailbox.Dialer
	validator       *validator.Validate
	registry        *registry.Registry
}

func NewAPIHandlers(deps Dependencies) *APIHandlers {
	v := deps.Validator
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}

	return &APIHandlers{
		workflowService: deps.Workflows,
		triggerService:  deps.Triggers,
		runner:          deps.Runner,
		cron:            deps.Cron,
		mailbox:         deps.Mailbox,
		dialer:          deps.Dialer,
		validator:       v,
		registry:        deps.Registry,
	}
}

// Register mounts every route on app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Post("/hooks/:workflowId", h.Webhook)
	app.Post("/email/inbound/:workflowId", h.InboundEmail)
	app.Post("/email/poll", h.PollMailboxes)
	app.Post("/email/test-imap", h.CheckMailbox)
	app.Post("/cron/run", h.RunCron)

	w := app.Group("/workflows")
	w.Post("/execute", h.ExecuteJob)
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Get("/:id/executions", h.GetExecutions)
	w.Get("/:id/stats", h.GetStats)

	app.Get("/actions", h.GetActions)
	app.Get("/health", h.HealthCheck)
}

// optionalJSON decodes a request body that may be empty. ok is false for invalid JSON.
func optionalJSON(c fiber.Ctx) (any, bool) {
	body := c.Body()
	if len(body) == 0 {
		return nil, true
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false
	}

	return payload, true
}

func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	payload, ok := optionalJSON(c)
	if !ok {
		return badRequest(c, "Invalid JSON payload")
	}

	result, err := h.triggerService.Webhook(c.Context(), c.Params("workflowId"), payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) InboundEmail(c fiber.Ctx) error {
	payload, ok := optionalJSON(c)
	if !ok {
		return badRequest(c, "Invalid JSON payload")
	}

	result, err := h.triggerService.InboundEmail(c.Context(), c.Params("workflowId"), payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// ExecuteJob runs a job delivered by an HTTP push queue to completion.
func (h *APIHandlers) ExecuteJob(c fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return badRequest(c, "Missing body")
	}

	job, err := dispatch.Decode(body)
	if err != nil {
		return badRequest(c, "Invalid workflow job payload: "+err.Error())
	}

	if err := h.runner.Run(c.Context(), job); err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"ok": true})
}

func (h *APIHandlers) RunCron(c fiber.Ctx) error {
	payload, ok := optionalJSON(c)
	if !ok {
		payload = map[string]any{}
	}

	result, err := h.cron.RunCron(c.Context(), payload)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) PollMailboxes(c fiber.Ctx) error {
	summary, err := h.mailbox.PollAll(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(summary)
}

func (h *APIHandlers) CheckMailbox(c fiber.Ctx) error {
	var req CheckMailboxRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "Email and password are required")
	}

	server, err := mailbox.ResolveServer(req.Email, req.Host, req.Port)
	if err != nil {
		return c.JSON(fiber.Map{
			"ok":                false,
			"error":             "Unknown email provider. Please select IMAP server manually.",
			"knownServers":      mailbox.KnownServers(),
			"needsManualConfig": true,
		})
	}

	_, detected := mailbox.LookupServer(req.Email)
	serverInfo := fiber.Map{
		"host":         server.Host,
		"port":         server.Port,
		"autoDetected": req.Host == "" && detected,
	}

	folders, err := mailbox.CheckConnection(c.Context(), h.dialer, mailbox.TriggerConfig{
		Email:    req.Email,
		Password: req.Password,
		Host:     server.Host,
		Port:     server.Port,
	})
	if err != nil {
		return c.JSON(fiber.Map{"ok": false, "error": checkMessage(err), "server": serverInfo})
	}

	return c.JSON(fiber.Map{"ok": true, "mailboxes": folders, "server": serverInfo})
}

// checkMessage drops the sentinel prefix from connection check errors.
func checkMessage(err error) string {
	return strings.TrimPrefix(err.Error(), mailbox.ErrConnectionCheck.Error()+": ")
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	summaries, err := h.workflowService.Summaries(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(summaries)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req SaveWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), req.Workflow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(newWorkflowResponse(created))
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Missing workflow id")
	}

	var req SaveWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), id, req.Workflow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(newWorkflowResponse(updated))
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	limit := services.DefaultExecutionsLimit

	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		limit = parsed
	}

	executions, err := h.workflowService.Executions(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) GetStats(c fiber.Ctx) error {
	stats, err := h.workflowService.Stats(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) GetActions(c fiber.Ctx) error {
	return c.JSON(h.registry.Actions())
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := "No actions registered", false
	if n := len(h.registry.Actions()); n > 0 {
		registryCheck, regOk = strconv.Itoa(n)+" actions registered", true
	}

	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Autoflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Autoflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
