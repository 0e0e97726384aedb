package application

import "aagateway/internal/domain"

type SubmissionQueryFilter struct {
	Operation domain.Operation
	Sender    string
	Subject   string
	Status    domain.SubmissionStatus
	Limit     int
}
