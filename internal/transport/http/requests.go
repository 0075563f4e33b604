package httptransport

import "strings"

// MaxImportRows bounds a single bulk import request.
const MaxImportRows = 1000

type EnrolStudentRequest struct {
	StudentRef string `json:"student_ref" validate:"required,notblank,max=64"`
	Grade      string `json:"grade" validate:"required,notblank,max=16"`
}

func (r *EnrolStudentRequest) Normalize() {
	r.StudentRef = strings.TrimSpace(r.StudentRef)
	r.Grade = strings.TrimSpace(r.Grade)
}

type ImportStudentsRequest struct {
	Rows []EnrolStudentRequest `json:"rows" validate:"required,min=1,max=1000,dive"`
}

func (r *ImportStudentsRequest) Normalize() {
	for i := range r.Rows {
		r.Rows[i].Normalize()
	}
}
