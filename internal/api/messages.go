package api

import "github.com/CostinMirescu/sala-alternativa/internal/attendance"

var reasonRO = map[attendance.Reason]string{
	attendance.ReasonOK:              "înregistrare reușită",
	attendance.ReasonRateLimit:       "prea multe încercări într-un minut",
	attendance.ReasonDeviceOtherCode: "același dispozitiv folosit pentru alt cod în această oră",
	attendance.ReasonDuplicateCode:   "cod deja folosit în această oră",
	attendance.ReasonInvalidCode:     "cod necunoscut pentru această clasă",
	attendance.ReasonNotOpen:         "fereastra nu este încă deschisă",
	attendance.ReasonWindowExpired:   "fereastra de check-in a expirat",
	attendance.ReasonCheckoutEarly:   "check-out prea devreme",
	attendance.ReasonCheckoutLate:    "check-out prea târziu",
	attendance.ReasonNoCheckIn:       "nu există check-in pentru acest cod",
	attendance.ReasonAlreadyLeft:     "check-out deja înregistrat",
}

const (
	msgTokenExpired = "codul QR a expirat, scanează din nou"
	msgTokenInvalid = "cod QR invalid"
	msgNotFound     = "ora nu a fost găsită"
	msgInternal     = "eroare internă"
)

func message(r attendance.Reason) string {
	if m, ok := reasonRO[r]; ok {
		return m
	}
	return string(r)
}
