package enrich

// docs is the count/docs wrapper Threat Response expects around entity lists.
type docs struct {
	Count int         `json:"count"`
	Docs  interface{} `json:"docs"`
}

// Envelope renders the relay response body: entity lists under "data", the
// collected entries under "errors". Empty sections are omitted; when there is
// no data at all but there are errors, "data" is dropped entirely.
func (r *Result) Envelope() map[string]interface{} {
	data := map[string]interface{}{}
	if len(r.Sightings) > 0 {
		data["sightings"] = docs{Count: len(r.Sightings), Docs: r.Sightings}
	}
	if len(r.Judgements) > 0 {
		data["judgements"] = docs{Count: len(r.Judgements), Docs: r.Judgements}
	}
	if len(r.Verdicts) > 0 {
		data["verdicts"] = docs{Count: len(r.Verdicts), Docs: r.Verdicts}
	}

	envelope := map[string]interface{}{}
	if len(r.Errors) > 0 {
		envelope["errors"] = r.Errors
		if len(data) > 0 {
			envelope["data"] = data
		}
		return envelope
	}
	envelope["data"] = data
	return envelope
}
