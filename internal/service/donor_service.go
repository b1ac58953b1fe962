package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"github.com/TooLazyToCreate/blood-connect/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const msgDonorNotFound = "Donor not found"

type DonorService struct {
	logger *zap.Logger
	donors repository.DonorRepository
	now    func() time.Time
}

func NewDonorService(logger *zap.Logger, donors repository.DonorRepository) *DonorService {
	return &DonorService{logger: logger, donors: donors, now: time.Now}
}

type DonorInput struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,mailbox"`
	Phone      string `json:"phone" validate:"required"`
	BloodGroup string `json:"bloodGroup" validate:"required,bloodgroup"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
}

func (in *DonorInput) normalize() {
	trim(&in.Name, &in.Email, &in.Phone, &in.BloodGroup, &in.City, &in.State)
	in.BloodGroup = strings.ToUpper(in.BloodGroup)
	in.Email = model.NormalizeEmail(in.Email)
}

// DonorPatch holds the fields of a partial update; nil means unchanged.
type DonorPatch struct {
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	BloodGroup *string `json:"bloodGroup"`
	City       *string `json:"city"`
	State      *string `json:"state"`
}

func (p *DonorPatch) apply(in *DonorInput) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&in.Name, p.Name)
	set(&in.Email, p.Email)
	set(&in.Phone, p.Phone)
	set(&in.BloodGroup, p.BloodGroup)
	set(&in.City, p.City)
	set(&in.State, p.State)
}

func inputOf(d *model.Donor) DonorInput {
	return DonorInput{Name: d.Name, Email: d.Email, Phone: d.Phone, BloodGroup: d.BloodGroup, City: d.City, State: d.State}
}

func (service *DonorService) Create(ctx context.Context, in DonorInput) (*model.Donor, error) {
	in.normalize()
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	now := service.now().UTC()
	donor := &model.Donor{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Email:      in.Email,
		Phone:      in.Phone,
		BloodGroup: in.BloodGroup,
		City:       in.City,
		State:      in.State,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := service.donors.Create(ctx, donor); err != nil {
		return nil, newError(ErrInternal, "Donor registration failed. Please try again later.", err)
	}
	return donor, nil
}

func (service *DonorService) Search(ctx context.Context, filter model.DonorFilter) ([]model.Donor, error) {
	if filter.BloodGroup != "" && !isBloodGroup(filter.BloodGroup) {
		return nil, newError(ErrValidation, msgInvalidBlood, nil)
	}
	donors, err := service.donors.Search(ctx, filter)
	if err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}
	if donors == nil {
		donors = []model.Donor{}
	}
	return donors, nil
}

// Update merges patch onto the stored donor and validates the result as a whole.
func (service *DonorService) Update(ctx context.Context, id string, patch DonorPatch) (*model.Donor, error) {
	donor, err := service.donors.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(ErrNotFound, msgDonorNotFound, err)
	}
	if err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}
	in := inputOf(donor)
	patch.apply(&in)
	in.normalize()
	if err = validateStruct(&in); err != nil {
		return nil, err
	}
	donor.Name, donor.Email, donor.Phone = in.Name, in.Email, in.Phone
	donor.BloodGroup, donor.City, donor.State = in.BloodGroup, in.City, in.State
	donor.UpdatedAt = service.now().UTC()

	err = service.donors.Update(ctx, donor)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(ErrNotFound, msgDonorNotFound, err)
	}
	if err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}
	return donor, nil
}

type donorResponse struct {
	Message string       `json:"message"`
	Donor   *model.Donor `json:"donor"`
}

func (service *DonorService) HandleCreate(w http.ResponseWriter, req *http.Request) {
	var in DonorInput
	if err := decodeJSON(req, &in); err != nil {
		writeError(service.logger, w, req, err)
		return
	}
	donor, err := service.Create(req.Context(), in)
	if err != nil {
		writeError(service.logger, w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, donorResponse{Message: "Donor registered successfully", Donor: donor})
}

func (service *DonorService) HandleList(w http.ResponseWriter, req *http.Request) {
	donors, err := service.Search(req.Context(), model.DonorFilter{})
	if err != nil {
		writeError(service.logger, w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, donors)
}

func (service *DonorService) HandleSearch(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	/* Неэкранированный "+" в query приходит пробелом: "A+" превращается в "A " */
	bloodGroup := strings.ReplaceAll(query.Get("bloodGroup"), " ", "+")
	filter := model.DonorFilter{
		BloodGroup: strings.ToUpper(strings.TrimSpace(bloodGroup)),
		City:       strings.TrimSpace(query.Get("city")),
		State:      strings.TrimSpace(query.Get("state")),
	}
	donors, err := service.Search(req.Context(), filter)
	if err != nil {
		writeError(service.logger, w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, donors)
}

func (service *DonorService) HandleUpdate(w http.ResponseWriter, req *http.Request) {
	var patch DonorPatch
	if err := decodeJSON(req, &patch); err != nil {
		writeError(service.logger, w, req, err)
		return
	}
	donor, err := service.Update(req.Context(), chi.URLParam(req, "id"), patch)
	if err != nil {
		writeError(service.logger, w, req, err, zap.String("donor_id", chi.URLParam(req, "id")))
		return
	}
	writeJSON(w, http.StatusOK, donorResponse{Message: "Donor updated successfully", Donor: donor})
}
