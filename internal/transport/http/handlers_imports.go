package httptransport

import (
	"context"
	"fmt"
	"net/http"

	"campusgate/internal/progress"
	"campusgate/pkg/platform/httputil"
)

type ImportAcceptedResponse struct {
	OperationID string `json:"operation_id"`
	StatusURL   string `json:"status_url"`
	StreamURL   string `json:"stream_url"`
}

// HandleImportStudents starts a background import and answers 202 with the
// operation id. The job keeps the caller's storage scope, so rows land in
// the caller's tenant only.
func (h *Handler) HandleImportStudents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ImportStudentsRequest](w, r, h.logger)
	if !ok {
		return
	}

	rows := req.Rows
	opID, err := h.jobs.Go(ctx, fmt.Sprintf("importing %d students", len(rows)), func(ctx context.Context, report progress.Report) error {
		for i, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := h.enrolments.Add(ctx, row.StudentRef, row.Grade); err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
			report((i+1)*100/len(rows), fmt.Sprintf("imported %d of %d", i+1, len(rows)))
		}
		return nil
	})
	if err != nil {
		h.fail(ctx, w, "start import failed", err)
		return
	}

	base := "/api/operations/" + opID.String()
	httputil.WriteJSON(w, http.StatusAccepted, ImportAcceptedResponse{
		OperationID: opID.String(),
		StatusURL:   base,
		StreamURL:   base + "/progress",
	})
}
