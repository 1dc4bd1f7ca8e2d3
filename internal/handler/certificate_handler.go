package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fundacion-aprender/portal-api/internal/models"
	"github.com/fundacion-aprender/portal-api/internal/service"
	appErrors "github.com/fundacion-aprender/portal-api/pkg/errors"
	"github.com/fundacion-aprender/portal-api/pkg/response"
	"github.com/fundacion-aprender/portal-api/pkg/storage"
)

// CertificateHandler exposes certificate workflow endpoints.
type CertificateHandler struct {
	certificates *service.CertificateService
	signer       *storage.SignedURLSigner
	store        *storage.LocalStorage
}

// NewCertificateHandler constructs CertificateHandler.
func NewCertificateHandler(certificates *service.CertificateService, signer *storage.SignedURLSigner, store *storage.LocalStorage) *CertificateHandler {
	return &CertificateHandler{certificates: certificates, signer: signer, store: store}
}

type certificateBatchRequest struct {
	EnrollmentIDs []string `json:"enrollment_ids" binding:"required,min=1"`
}

// Approve godoc
// @Summary Approve certificates
// @Description Batch issuance over enrollment ids; reports aggregate counts
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body handler.certificateBatchRequest true "Enrollment ids"
// @Success 200 {object} response.Envelope
// @Router /certificates/approve [post]
func (h *CertificateHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req certificateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	result, err := h.certificates.Approve(c.Request.Context(), req.EnrollmentIDs, claims.UserID, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Revoke godoc
// @Summary Revoke certificates
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body handler.certificateBatchRequest true "Enrollment ids"
// @Success 200 {object} response.Envelope
// @Router /certificates/revoke [post]
func (h *CertificateHandler) Revoke(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req certificateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	result, err := h.certificates.Revoke(c.Request.Context(), req.EnrollmentIDs, claims.UserID, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListByWorkshop godoc
// @Summary List certificates for a workshop
// @Tags Certificates
// @Produce json
// @Param id path string true "Workshop ID"
// @Success 200 {object} response.Envelope
// @Router /workshops/{id}/certificates [get]
func (h *CertificateHandler) ListByWorkshop(c *gin.Context) {
	certificates, err := h.certificates.ListByWorkshop(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, certificates, nil)
}

// Download godoc
// @Summary Download a certificate artifact
// @Description Only the owning user or staff may fetch the PDF
// @Tags Certificates
// @Produce application/pdf
// @Param id path string true "Certificate ID"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/{id}/download [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	certificate, path, err := h.certificates.ResolveArtifact(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="certificado_`+certificate.ID+`.pdf"`)
	c.Header("Content-Type", "application/pdf")
	c.File(path)
}

// Link godoc
// @Summary Create a signed download link
// @Description Issues a time-limited token for sharing the artifact without credentials
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/link [post]
func (h *CertificateHandler) Link(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	certificate, _, err := h.certificates.ResolveArtifact(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, expiresAt, err := h.signer.Generate(certificate.ID, *certificate.ArtifactPath)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to sign download link"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"token": token, "expires_at": expiresAt}, nil)
}

// DownloadSigned godoc
// @Summary Download via signed token
// @Tags Certificates
// @Produce application/pdf
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /certificates/download [get]
func (h *CertificateHandler) DownloadSigned(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	certificateID, relPath, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}

	path, err := h.store.Path(relPath)
	if err != nil || !h.store.Exists(relPath) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "certificate artifact unavailable"))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="certificado_`+certificateID+`.pdf"`)
	c.Header("Content-Type", "application/pdf")
	c.File(path)
}
