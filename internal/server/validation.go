package server

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"trailhead/internal/database"
	"trailhead/pkg/models"

	"github.com/sirupsen/logrus"
)

// Query limit defaults and caps. Unbounded searches default high because
// the frontend renders summaries only; the bounds convenience endpoint is
// meant for dense viewports and stays small.
const (
	defaultSearchLimit = 1000
	defaultBoundsLimit = 100
	maxBoundsLimit     = 100
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// respondWithValidationError sends a structured validation error response
func (ts *TrackServer) respondWithValidationError(w http.ResponseWriter, r *http.Request, errors []ValidationError) {
	ts.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"errors": errors,
	}).Warn("Validation failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	result := ValidationResult{
		Valid:  false,
		Errors: errors,
	}

	ts.respondJSON(w, result)
}

// respondWithError sends a structured error response
func (ts *TrackServer) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	logEntry := ts.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
		"message":     message,
	})

	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]interface{}{
		"error":   message,
		"code":    statusCode,
		"success": false,
	}

	ts.respondJSON(w, response)
}

// parseTrackFilter builds a database.TrackFilter from query parameters.
// Bounds parameters must be supplied all together or not at all.
func parseTrackFilter(values url.Values) (database.TrackFilter, []ValidationError) {
	var errors []ValidationError

	filter := database.TrackFilter{
		Query: values.Get("q"),
		Limit: defaultSearchLimit,
	}

	if v, verr := parseOptionalFloat(values, "min_distance"); verr != nil {
		errors = append(errors, *verr)
	} else {
		filter.MinDistance = v
	}
	if v, verr := parseOptionalFloat(values, "max_distance"); verr != nil {
		errors = append(errors, *verr)
	} else {
		filter.MaxDistance = v
	}
	if v, verr := parseOptionalInt(values, "min_duration"); verr != nil {
		errors = append(errors, *verr)
	} else {
		filter.MinDuration = v
	}
	if v, verr := parseOptionalInt(values, "max_duration"); verr != nil {
		errors = append(errors, *verr)
	} else {
		filter.MaxDuration = v
	}

	bounds, verrs := parseOptionalBounds(values)
	if len(verrs) > 0 {
		errors = append(errors, verrs...)
	} else {
		filter.Bounds = bounds
	}

	if limitStr := values.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			errors = append(errors, ValidationError{
				Field:   "limit",
				Message: "Limit must be a positive integer",
				Code:    "INVALID_LIMIT",
			})
		} else if limit < filter.Limit {
			filter.Limit = limit
		}
	}

	filter.IncludePoints = values.Get("include_routes") == "true"

	return filter, errors
}

// parseRequiredBounds parses the four bounds parameters, all mandatory.
// Used by the bounds-only convenience endpoint.
func parseRequiredBounds(values url.Values) (*models.Bounds, []ValidationError) {
	var errors []ValidationError
	coords := make(map[string]float64, 4)

	for _, field := range []string{"north", "south", "east", "west"} {
		raw := values.Get(field)
		if raw == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "Bounds parameter is required",
				Code:    "MISSING_BOUNDS",
			})
			continue
		}
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "Bounds parameter must be a valid number",
				Code:    "INVALID_BOUNDS_FORMAT",
			})
			continue
		}
		coords[field] = val
	}

	if len(errors) > 0 {
		return nil, errors
	}

	bounds := &models.Bounds{
		North: coords["north"],
		South: coords["south"],
		East:  coords["east"],
		West:  coords["west"],
	}

	return bounds, validateBounds(bounds)
}

// parseOptionalBounds accepts either all four bounds parameters or none.
func parseOptionalBounds(values url.Values) (*models.Bounds, []ValidationError) {
	present := 0
	for _, field := range []string{"north", "south", "east", "west"} {
		if values.Get(field) != "" {
			present++
		}
	}
	if present == 0 {
		return nil, nil
	}
	if present < 4 {
		return nil, []ValidationError{{
			Field:   "bounds",
			Message: "Bounds parameters (north, south, east, west) must be supplied together",
			Code:    "PARTIAL_BOUNDS",
		}}
	}
	return parseRequiredBounds(values)
}

// validateBounds rejects degenerate or antimeridian-crossing query boxes.
func validateBounds(b *models.Bounds) []ValidationError {
	var errors []ValidationError
	if b.North < b.South {
		errors = append(errors, ValidationError{
			Field:   "bounds",
			Message: "North must not be south of south",
			Code:    "INVERTED_BOUNDS",
		})
	}
	if b.East < b.West {
		// Antimeridian-crossing viewports are not supported.
		errors = append(errors, ValidationError{
			Field:   "bounds",
			Message: "East must not be west of west (antimeridian-crossing queries are not supported)",
			Code:    "INVERTED_BOUNDS",
		})
	}
	return errors
}

// parseTrackID extracts and validates the numeric track ID from a URL path
// of the form /api/tracks/{id}[/download].
func parseTrackID(pathParts []string, index int) (int64, *ValidationError) {
	if len(pathParts) <= index || pathParts[index] == "" {
		return 0, &ValidationError{
			Field:   "track_id",
			Message: "Track ID is required",
			Code:    "MISSING_TRACK_ID",
		}
	}

	trackID, err := strconv.ParseInt(pathParts[index], 10, 64)
	if err != nil {
		return 0, &ValidationError{
			Field:   "track_id",
			Message: "Track ID must be a valid integer",
			Code:    "INVALID_TRACK_ID_FORMAT",
		}
	}

	if trackID <= 0 {
		return 0, &ValidationError{
			Field:   "track_id",
			Message: "Track ID must be positive",
			Code:    "INVALID_TRACK_ID_VALUE",
		}
	}

	return trackID, nil
}

// parseTrackIDList parses the comma-separated ids parameter of the
// coordinate batch endpoint, enforcing the per-call cap.
func parseTrackIDList(raw string) ([]int64, *ValidationError) {
	if raw == "" {
		return nil, &ValidationError{
			Field:   "ids",
			Message: "The ids parameter is required",
			Code:    "MISSING_IDS",
		}
	}

	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, &ValidationError{
				Field:   "ids",
				Message: "Track IDs must be positive integers",
				Code:    "INVALID_TRACK_ID_FORMAT",
			}
		}
		ids = append(ids, id)
	}

	if len(ids) > database.MaxCoordinateBatch {
		return nil, &ValidationError{
			Field:   "ids",
			Message: "Too many track IDs requested (max 50)",
			Code:    "TOO_MANY_IDS",
		}
	}

	return ids, nil
}

func parseOptionalFloat(values url.Values, field string) (*float64, *ValidationError) {
	raw := values.Get(field)
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &ValidationError{
			Field:   field,
			Message: "Parameter must be a valid number",
			Code:    "INVALID_NUMBER_FORMAT",
		}
	}
	return &val, nil
}

func parseOptionalInt(values url.Values, field string) (*int, *ValidationError) {
	raw := values.Get(field)
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &ValidationError{
			Field:   field,
			Message: "Parameter must be a valid integer",
			Code:    "INVALID_NUMBER_FORMAT",
		}
	}
	return &val, nil
}
