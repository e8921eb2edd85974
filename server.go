package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"rinkserver/checks"
	"rinkserver/clubauth"
	log "rinkserver/cloudlog"
	"rinkserver/collections"
	"rinkserver/delivery"
	"rinkserver/storage"
	"rinkserver/triggers"

	"github.com/gorilla/mux"
)

type server struct {
	db       storage.Store
	registry *triggers.Registry
	verifier clubauth.Verifier
	queue    *delivery.Queue
}

func (s *server) router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/events", s.handleEvent).Methods(http.MethodPost)
	router.HandleFunc("/orgs/{org}/checks/slot-attendance", s.handleSlotAttendanceCheck).Methods(http.MethodGet)
	router.HandleFunc("/orgs/{org}/customers/{customer}/booking-link", s.handleBookingLink).Methods(http.MethodPost)
	return router
}

// documentEvent is the push envelope delivered for each document write.
type documentEvent struct {
	Path   string      `json:"path"`
	Before storage.Doc `json:"before"`
	After  storage.Doc `json:"after"`
}

// handleEvent dispatches a document change through the trigger registry. A
// non-2xx response makes the pusher redeliver, which is safe because every
// handler is idempotent.
func (s *server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var event documentEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}
	if event.Path == "" {
		http.Error(w, "event has no document path", http.StatusBadRequest)
		return
	}
	if err := s.registry.Dispatch(r.Context(), event.Path, event.Before, event.After); err != nil {
		http.Error(w, "reconciliation failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSlotAttendanceCheck(w http.ResponseWriter, r *http.Request) {
	org := mux.Vars(r)["org"]
	if !s.authorize(r, org) {
		http.Error(w, "admin access required", http.StatusForbidden)
		return
	}
	report, err := checks.FindSlotAttendanceMismatches(r.Context(), s.db, org)
	if err != nil {
		log.Printf("slot/attendance check for %s failed: %v", org, err)
		http.Error(w, "check failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

// bookingLinkRequest selects the delivery method for a customer's booking
// link. BookingsURL is the customer-facing base the secret key is appended
// to.
type bookingLinkRequest struct {
	Method      string `json:"method"`
	BookingsURL string `json:"bookingsURL"`
}

func (s *server) handleBookingLink(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	org, customerID := vars["org"], vars["customer"]
	if !s.authorize(r, org) {
		http.Error(w, "admin access required", http.StatusForbidden)
		return
	}

	var req bookingLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	if req.BookingsURL == "" {
		http.Error(w, "bookingsURL is required", http.StatusBadRequest)
		return
	}

	customer, exists, err := s.db.Get(r.Context(), collections.CustomerPath(org, customerID))
	if err != nil {
		http.Error(w, "customer lookup failed", http.StatusInternalServerError)
		return
	}
	secretKey := collections.Str(customer, collections.SecretKeyField)
	if !exists || secretKey == "" {
		http.Error(w, "customer not found", http.StatusNotFound)
		return
	}
	orgDoc, _, err := s.db.Get(r.Context(), collections.OrgPath(org))
	if err != nil {
		http.Error(w, "organization lookup failed", http.StatusInternalServerError)
		return
	}

	link := strings.TrimRight(req.BookingsURL, "/") + "/" + secretKey
	name := collections.Str(customer, "name")

	var id string
	switch req.Method {
	case "email":
		email := collections.Str(customer, "email")
		if email == "" {
			http.Error(w, "customer has no email", http.StatusBadRequest)
			return
		}
		template := collections.Str(collections.Sub(orgDoc, "emailTemplates"), "bookingLink")
		if template == "" {
			template = "Hello {{name}},<br>your personal booking link: <a href=\"{{bookingsLink}}\">{{bookingsLink}}</a>"
		}
		id, err = s.queue.EnqueueEmail(r.Context(), org, storage.Doc{
			"to":      email,
			"from":    collections.Str(orgDoc, "emailFrom"),
			"subject": "Your booking link for " + collections.Str(orgDoc, "displayName"),
			"html":    fillTemplate(template, name, link),
		})
	case "sms":
		phone := collections.Str(customer, "phone")
		if phone == "" {
			http.Error(w, "customer has no phone number", http.StatusBadRequest)
			return
		}
		template := collections.Str(collections.Sub(orgDoc, "smsTemplates"), "bookingLink")
		if template == "" {
			template = "Hello {{name}}, your personal booking link: {{bookingsLink}}"
		}
		id, err = s.queue.EnqueueSMS(r.Context(), org, storage.Doc{
			"to":      phone,
			"message": fillTemplate(template, name, link),
		})
	default:
		http.Error(w, "method must be email or sms", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("booking link enqueue for %s/%s failed: %v", org, customerID, err)
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"id": id})
}

// authorize checks the bearer token against the organization's admin list.
func (s *server) authorize(r *http.Request, org string) bool {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		return false
	}
	identities, err := s.verifier.Identities(r.Context(), token)
	if err != nil {
		log.Printf("token verification failed: %v", err)
		return false
	}
	orgDoc, _, err := s.db.Get(r.Context(), collections.OrgPath(org))
	if err != nil {
		log.Printf("admin lookup for %s failed: %v", org, err)
		return false
	}
	return clubauth.IsOrgAdmin(identities, collections.Strs(orgDoc, collections.AdminsField))
}

func fillTemplate(template, name, link string) string {
	out := strings.ReplaceAll(template, "{{name}}", name)
	return strings.ReplaceAll(out, "{{bookingsLink}}", link)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("response encode failed: %v", err)
	}
}
