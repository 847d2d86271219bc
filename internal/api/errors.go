package api

import (
    "errors"
    "net/http"

    "fieldcrm/internal/model"
    "fieldcrm/internal/store"
)

// writeError maps domain errors to problem responses. Anything unrecognised is a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
    var (
        ve *model.ValidationError
        nf *model.NotFoundError
        ue *model.UpstreamError
        pe *model.PreconditionError
    )
    p := Problem{Title: title, Detail: err.Error(), Instance: r.URL.Path}
    switch {
    case errors.As(err, &ve):
        p.Status, p.Field = http.StatusBadRequest, ve.Field
    case errors.As(err, &nf), errors.Is(err, store.ErrNotFound):
        p.Status = http.StatusNotFound
    case errors.As(err, &pe):
        p.Status, p.StopIDs = http.StatusConflict, pe.StopIDs
    case errors.Is(err, store.ErrConflict):
        p.Status = http.StatusConflict
    case errors.As(err, &ue):
        p.Status, p.UpstreamStatus = http.StatusBadGateway, ue.Status
    default:
        p.Status = http.StatusInternalServerError
        s.Log.WithError(err).WithField("path", r.URL.Path).Error(title)
    }
    writeProblemBody(w, p)
}
