package http

import (
	"github.com/gofiber/fiber/v2"

	"vendoriq_server/core/port/out"
	"vendoriq_server/pkg/apperr"
	"vendoriq_server/pkg/response"
)

// =============================================================================
// Drive Browsing Handler
// =============================================================================

// DriveHandler exposes read-only browsing of the uploaded invoice folders.
type DriveHandler struct {
	storage out.StorageProvider
	users   out.UserRepository
}

// NewDriveHandler creates a new drive browsing handler.
func NewDriveHandler(storage out.StorageProvider, users out.UserRepository) *DriveHandler {
	return &DriveHandler{storage: storage, users: users}
}

func (h *DriveHandler) Register(protected fiber.Router) {
	protected.Get("/drive/vendors", h.ListVendors)
	protected.Get("/drive/vendors/:folderId/invoices", h.ListInvoices)
}

// refreshTokenFor resolves the caller's stored Google credential.
func (h *DriveHandler) refreshTokenFor(c *fiber.Ctx) (string, error) {
	userID, err := MustGetUserID(c)
	if err != nil {
		return "", err
	}

	user, err := h.users.FindByID(c.Context(), userID)
	if err != nil {
		return "", apperr.InternalWithError(err)
	}
	if user == nil {
		return "", apperr.NotFound("user")
	}
	if !user.IsConnected() {
		return "", apperr.NotConnected()
	}
	return user.GoogleRefreshToken, nil
}

// =============================================================================
// Handlers
// =============================================================================

func (h *DriveHandler) ListVendors(c *fiber.Ctx) error {
	refreshToken, err := h.refreshTokenFor(c)
	if err != nil {
		return err
	}

	folders, err := h.storage.ListVendorFolders(c.Context(), refreshToken)
	if err != nil {
		return apperr.ExternalError("drive", err)
	}
	return response.OKWithMeta(c, folders, &response.Meta{Total: len(folders)})
}

func (h *DriveHandler) ListInvoices(c *fiber.Ctx) error {
	refreshToken, err := h.refreshTokenFor(c)
	if err != nil {
		return err
	}

	folderID := c.Params("folderId")
	if folderID == "" {
		return apperr.MissingField("folderId")
	}

	list, err := h.storage.ListVendorInvoices(c.Context(), refreshToken, folderID)
	if err != nil {
		return apperr.ExternalError("drive", err)
	}
	return response.OKWithMeta(c, list, &response.Meta{Total: len(list.Invoices)})
}
