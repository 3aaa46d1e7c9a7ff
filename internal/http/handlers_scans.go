package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"scanq/internal/admission"
	"scanq/internal/scans"
)

func scanService(c *fiber.Ctx) *scans.Service {
	return c.Locals("scans").(*scans.Service)
}

// deniedResponse maps an admission denial onto the wire. Capability
// denials are 403; quota and daily-cap denials are 429 with the
// {"detail": ...} body shape clients already parse.
func deniedResponse(c *fiber.Ctx, denied *admission.DeniedError) error {
	if denied.Kind == admission.DeniedMode {
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
			Success: false,
			Code:    "MODE_NOT_ALLOWED",
			Error:   denied.Reason,
		})
	}
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"detail": denied.Reason})
}

func createScanHandler(c *fiber.Ctx) error {
	sub, ok := currentSubject(c)
	if !ok {
		return unauthenticated(c)
	}

	var req CreateScanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Invalid JSON body",
		})
	}

	req.Target = strings.TrimSpace(req.Target)
	if req.Target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "target is required",
		})
	}

	scan, decision, err := scanService(c).Create(c.Context(), sub, scans.CreateParams{
		Target:        req.Target,
		Mode:          req.Mode,
		ExecutionMode: req.ExecutionMode,
	})
	setRateHeaders(c, decision)
	if err != nil {
		var denied *admission.DeniedError
		if errors.As(err, &denied) {
			return deniedResponse(c, denied)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   "Failed to create scan",
		})
	}

	item := scanItem(scan)
	return c.Status(fiber.StatusCreated).JSON(ScanResponse{Success: true, Scan: &item})
}

func listScansHandler(c *fiber.Ctx) error {
	sub, ok := currentSubject(c)
	if !ok {
		return unauthenticated(c)
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	rows, err := scanService(c).List(c.Context(), sub, limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   "Failed to list scans",
		})
	}

	items := make([]ScanItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, scanItem(row))
	}
	return c.JSON(ListScansResponse{Success: true, Scans: items})
}

func scanIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Invalid scan id",
		})
	}
	return id, nil
}

func getScanHandler(c *fiber.Ctx) error {
	sub, ok := currentSubject(c)
	if !ok {
		return unauthenticated(c)
	}
	id, err := scanIDParam(c)
	if err != nil || id == uuid.Nil {
		return err
	}

	scan, err := scanService(c).Get(c.Context(), sub, id)
	if err != nil {
		return scanErrorResponse(c, err)
	}
	item := scanItem(scan)
	return c.JSON(ScanResponse{Success: true, Scan: &item})
}

func scanStatusHandler(c *fiber.Ctx) error {
	sub, ok := currentSubject(c)
	if !ok {
		return unauthenticated(c)
	}
	id, err := scanIDParam(c)
	if err != nil || id == uuid.Nil {
		return err
	}

	status, err := scanService(c).LiveStatus(c.Context(), sub, id)
	if err != nil {
		return scanErrorResponse(c, err)
	}
	return c.JSON(ScanStatusResponse{Success: true, ID: id.String(), Status: string(status)})
}

func cancelScanHandler(c *fiber.Ctx) error {
	sub, ok := currentSubject(c)
	if !ok {
		return unauthenticated(c)
	}
	id, err := scanIDParam(c)
	if err != nil || id == uuid.Nil {
		return err
	}

	scan, err := scanService(c).Cancel(c.Context(), sub, id)
	if err != nil {
		return scanErrorResponse(c, err)
	}
	item := scanItem(scan)
	return c.JSON(ScanResponse{Success: true, Scan: &item})
}

func deleteScanHandler(c *fiber.Ctx) error {
	sub, ok := currentSubject(c)
	if !ok {
		return unauthenticated(c)
	}
	id, err := scanIDParam(c)
	if err != nil || id == uuid.Nil {
		return err
	}

	if err := scanService(c).Delete(c.Context(), sub, id); err != nil {
		return scanErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func scanReportHandler(c *fiber.Ctx) error {
	sub, ok := currentSubject(c)
	if !ok {
		return unauthenticated(c)
	}
	id, err := scanIDParam(c)
	if err != nil || id == uuid.Nil {
		return err
	}

	format := c.Query("format", "json")
	report, err := scanService(c).Report(c.Context(), sub, id, format)
	if err != nil {
		return scanErrorResponse(c, err)
	}

	if format == "text" {
		c.Type("txt")
		return c.SendString(report)
	}
	c.Type("json")
	return c.SendString(report)
}

// scanErrorResponse maps service errors onto HTTP statuses.
func scanErrorResponse(c *fiber.Ctx, err error) error {
	var invalid *scans.InvalidTransitionError
	switch {
	case errors.Is(err, scans.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "Scan not found",
		})
	case errors.Is(err, scans.ErrNotCompleted):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_COMPLETED",
			Error:   "Scan has not completed yet",
		})
	case errors.As(err, &invalid):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Success: false,
			Code:    "INVALID_TRANSITION",
			Error:   invalid.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   "Unexpected error",
		})
	}
}
