package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"github.com/TooLazyToCreate/blood-connect/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const msgEmergencyNotFound = "Emergency request not found"

// flexInt accepts both 3 and "3", the form submits units as a string.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*n = flexInt(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = flexInt(v)
	return nil
}

type EmergencyInput struct {
	Name       string          `json:"name" validate:"required"`
	Phone      string          `json:"phone" validate:"required"`
	BloodGroup string          `json:"bloodGroup" validate:"required,bloodgroup"`
	Units      flexInt         `json:"units" validate:"required,gte=1"`
	Hospital   string          `json:"hospital" validate:"required"`
	Location   *model.Location `json:"location" validate:"required"`
}

type EmergencyService struct {
	logger      *zap.Logger
	emergencies repository.EmergencyRepository
	now         func() time.Time
}

func NewEmergencyService(logger *zap.Logger, emergencies repository.EmergencyRepository) *EmergencyService {
	return &EmergencyService{logger: logger, emergencies: emergencies, now: time.Now}
}

func (service *EmergencyService) Create(ctx context.Context, in EmergencyInput) (*model.EmergencyRequest, error) {
	trim(&in.Name, &in.Phone, &in.BloodGroup, &in.Hospital)
	in.BloodGroup = strings.ToUpper(in.BloodGroup)
	normalizeLocation(in.Location)
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	request := &model.EmergencyRequest{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Phone:      in.Phone,
		BloodGroup: in.BloodGroup,
		Units:      int(in.Units),
		Hospital:   in.Hospital,
		Location:   *in.Location,
		Status:     model.EmergencyOpen,
		CreatedAt:  service.now().UTC(),
	}
	if err := service.emergencies.Create(ctx, request); err != nil {
		return nil, newError(ErrInternal, "Emergency request failed. Please try again later.", err)
	}
	service.logger.Info("Emergency request created",
		zap.String("emergency_id", request.ID),
		zap.String("blood_group", request.BloodGroup),
		zap.Int("units", request.Units))
	return request, nil
}

func (service *EmergencyService) List(ctx context.Context, status model.EmergencyStatus) ([]model.EmergencyRequest, error) {
	if status != "" && status != model.EmergencyOpen && status != model.EmergencyResolved {
		return nil, newError(ErrValidation, "Invalid status", nil)
	}
	requests, err := service.emergencies.List(ctx, status)
	if err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}
	if requests == nil {
		requests = []model.EmergencyRequest{}
	}
	return requests, nil
}

// Resolve marks the request resolved. An already resolved request is returned unchanged.
func (service *EmergencyService) Resolve(ctx context.Context, id string) (*model.EmergencyRequest, error) {
	request, err := service.emergencies.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(ErrNotFound, msgEmergencyNotFound, err)
	}
	if err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}
	if request.Status == model.EmergencyResolved {
		return request, nil
	}
	resolvedAt := service.now().UTC()
	request.Status = model.EmergencyResolved
	request.ResolvedAt = &resolvedAt
	err = service.emergencies.Update(ctx, request)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(ErrNotFound, msgEmergencyNotFound, err)
	}
	if err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}
	return request, nil
}

type emergencyResponse struct {
	Message string                  `json:"message"`
	Request *model.EmergencyRequest `json:"request"`
}

func (service *EmergencyService) HandleCreate(w http.ResponseWriter, req *http.Request) {
	var in EmergencyInput
	if err := decodeJSON(req, &in); err != nil {
		writeError(service.logger, w, req, err)
		return
	}
	request, err := service.Create(req.Context(), in)
	if err != nil {
		writeError(service.logger, w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, emergencyResponse{Message: "Emergency request submitted successfully", Request: request})
}

func (service *EmergencyService) HandleList(w http.ResponseWriter, req *http.Request) {
	status := model.EmergencyStatus(strings.ToLower(strings.TrimSpace(req.URL.Query().Get("status"))))
	requests, err := service.List(req.Context(), status)
	if err != nil {
		writeError(service.logger, w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (service *EmergencyService) HandleResolve(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	request, err := service.Resolve(req.Context(), id)
	if err != nil {
		writeError(service.logger, w, req, err, zap.String("emergency_id", id))
		return
	}
	fields := []zap.Field{zap.String("emergency_id", id)}
	if account := AccountFromContext(req.Context()); account != nil {
		fields = append(fields, zap.String("account_id", account.ID))
	}
	service.logger.Info("Emergency request resolved", fields...)
	writeJSON(w, http.StatusOK, emergencyResponse{Message: "Emergency request resolved", Request: request})
}
