package vouchers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/dto"
	"github.com/GlebRadaev/coursepay/internal/service/voucherservice"
	"github.com/GlebRadaev/coursepay/pkg/auth"
	"github.com/GlebRadaev/coursepay/pkg/utils"
	"github.com/GlebRadaev/coursepay/pkg/validate"
)

//go:generate mockgen -source=vouchers.go -destination=mock_vouchers.go -package=vouchers

type Service interface {
	Create(ctx context.Context, instructorID int64, v *domain.Voucher) (*domain.Voucher, error)
	ListByInstructor(ctx context.Context, instructorID int64) ([]domain.Voucher, error)
	Deactivate(ctx context.Context, instructorID, id int64) error
}

type VoucherHandler struct {
	voucherService Service
}

func New(voucherService Service) *VoucherHandler {
	return &VoucherHandler{voucherService: voucherService}
}

// Create godoc
//
//	@Summary	Create a voucher
//	@Tags		Vouchers
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		request	body		dto.CreateVoucherRequestDTO	true	"Voucher definition"
//	@Success	201		{object}	dto.VoucherResponseDTO
//	@Failure	400		{object}	utils.Response	"Invalid definition"
//	@Failure	403		{object}	utils.Response	"Instructors only"
//	@Failure	409		{object}	utils.Response	"Code already exists"
//	@Router		/api/instructor/vouchers [post]
func (h *VoucherHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateVoucherRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := h.voucherService.Create(r.Context(), auth.UserID(r.Context()), req.Voucher())
	if err != nil {
		switch {
		case errors.Is(err, voucherservice.ErrInvalidDefinition):
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, voucherservice.ErrVoucherCodeTaken):
			utils.RespondWithError(w, http.StatusConflict, err.Error())
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, dto.NewVoucherResponse(v))
}

// List godoc
//
//	@Summary	List own vouchers
//	@Tags		Vouchers
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{array}	dto.VoucherResponseDTO
//	@Router		/api/instructor/vouchers [get]
func (h *VoucherHandler) List(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.voucherService.ListByInstructor(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	response := make([]dto.VoucherResponseDTO, len(vouchers))
	for i := range vouchers {
		response[i] = dto.NewVoucherResponse(&vouchers[i])
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

// Deactivate godoc
//
//	@Summary	Deactivate a voucher
//	@Tags		Vouchers
//	@Security	BearerAuth
//	@Param		id	path		int	true	"Voucher id"
//	@Success	200	{object}	utils.Response
//	@Failure	404	{object}	utils.Response	"Voucher not found"
//	@Router		/api/instructor/vouchers/{id}/deactivate [post]
func (h *VoucherHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid voucher id")
		return
	}
	if err := h.voucherService.Deactivate(r.Context(), auth.UserID(r.Context()), id); err != nil {
		if errors.Is(err, voucherservice.ErrVoucherNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.Response{Message: "voucher deactivated"})
}
