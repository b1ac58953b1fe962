package service

import (
	"context"
	"net/http"
	"strings"

	"github.com/TooLazyToCreate/blood-connect/internal/model"
	"github.com/TooLazyToCreate/blood-connect/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// inventoryKeys names the bloodInventory fields of the chatbot feed.
var inventoryKeys = map[string]string{
	"A+": "aPositive", "A-": "aNegative",
	"B+": "bPositive", "B-": "bNegative",
	"AB+": "abPositive", "AB-": "abNegative",
	"O+": "oPositive", "O-": "oNegative",
}

type DirectoryService struct {
	logger      *zap.Logger
	accounts    repository.AccountRepository
	donors      repository.DonorRepository
	emergencies repository.EmergencyRepository
}

func NewDirectoryService(logger *zap.Logger, storage *repository.Storage) *DirectoryService {
	return &DirectoryService{
		logger:      logger,
		accounts:    storage.Accounts,
		donors:      storage.Donors,
		emergencies: storage.Emergencies,
	}
}

type HospitalEntry struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Phone    string         `json:"phone,omitempty"`
	Location model.Location `json:"location"`
}

type ChatbotHospital struct {
	Name     string         `json:"name"`
	Location model.Location `json:"location"`
}

type BloodGroupCount struct {
	BloodGroup string `json:"bloodGroup"`
	Count      int    `json:"count"`
}

type ChatbotStatistics struct {
	TotalHospitals       int64          `json:"totalHospitals"`
	TotalUsers           int64          `json:"totalUsers"`
	TotalDonors          int64          `json:"totalDonors"`
	ActiveEmergencies    int64          `json:"activeEmergencies"`
	BloodInventory       map[string]int `json:"bloodInventory"`
	CityWiseDistribution map[string]int `json:"cityWiseDistribution"`
}

type ChatbotData struct {
	Statistics ChatbotStatistics `json:"statistics"`
	Hospitals  []ChatbotHospital `json:"hospitals"`
	Users      []BloodGroupCount `json:"users"`
}

func (service *DirectoryService) Hospitals(ctx context.Context) ([]HospitalEntry, error) {
	hospitals, err := service.accounts.List(ctx, model.KindHospital)
	if err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}
	entries := make([]HospitalEntry, 0, len(hospitals))
	for _, h := range hospitals {
		entries = append(entries, HospitalEntry{
			ID:       h.ID,
			Name:     h.HospitalName,
			Email:    h.Email,
			Phone:    h.Phone,
			Location: h.Location,
		})
	}
	return entries, nil
}

// ChatbotData aggregates what the chatbot widget shows: inventory counts come
// from the volunteer registry, user counts from registered donor accounts.
func (service *DirectoryService) ChatbotData(ctx context.Context) (*ChatbotData, error) {
	hospitals, err := service.accounts.List(ctx, model.KindHospital)
	if err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}
	users, err := service.accounts.List(ctx, model.KindUser)
	if err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}
	donors, err := service.donors.Search(ctx, model.DonorFilter{})
	if err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}
	active, err := service.emergencies.Count(ctx, model.EmergencyOpen)
	if err != nil {
		return nil, newError(ErrInternal, genericServerMessage, err)
	}

	data := &ChatbotData{
		Statistics: ChatbotStatistics{
			TotalHospitals:       int64(len(hospitals)),
			TotalUsers:           int64(len(users)),
			TotalDonors:          int64(len(donors)),
			ActiveEmergencies:    active,
			BloodInventory:       make(map[string]int, len(inventoryKeys)),
			CityWiseDistribution: make(map[string]int),
		},
		Hospitals: make([]ChatbotHospital, 0, len(hospitals)),
		Users:     make([]BloodGroupCount, 0, len(model.BloodGroups)),
	}
	for _, key := range inventoryKeys {
		data.Statistics.BloodInventory[key] = 0
	}
	for _, d := range donors {
		if key, ok := inventoryKeys[d.BloodGroup]; ok {
			data.Statistics.BloodInventory[key]++
		}
	}
	/* "pune" и "Pune " считаем одним городом */
	title := cases.Title(language.Und)
	for _, h := range hospitals {
		data.Hospitals = append(data.Hospitals, ChatbotHospital{Name: h.HospitalName, Location: h.Location})
		if city := strings.TrimSpace(h.Location.City); city != "" {
			data.Statistics.CityWiseDistribution[title.String(strings.ToLower(city))]++
		}
	}

	byGroup := make(map[string]int)
	for _, u := range users {
		byGroup[u.BloodGroup]++
	}
	for _, group := range model.BloodGroups {
		if n := byGroup[group]; n > 0 {
			data.Users = append(data.Users, BloodGroupCount{BloodGroup: group, Count: n})
		}
	}
	return data, nil
}

func (service *DirectoryService) HandleProfile(w http.ResponseWriter, req *http.Request) {
	account := AccountFromContext(req.Context())
	if account == nil {
		writeError(service.logger, w, req, newError(ErrUnauthorized, msgMissingAuthorization, nil))
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (service *DirectoryService) HandleHospitals(w http.ResponseWriter, req *http.Request) {
	entries, err := service.Hospitals(req.Context())
	if err != nil {
		writeError(service.logger, w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (service *DirectoryService) HandleChatbotData(w http.ResponseWriter, req *http.Request) {
	data, err := service.ChatbotData(req.Context())
	if err != nil {
		writeError(service.logger, w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}
