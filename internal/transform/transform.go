// Package transform validates raw weather API payloads and flattens them into
// the models used by the cache and the HTTP surface.
package transform

import (
	"strings"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/client"
	"github.com/kjstillabower/weather-location-sync/internal/models"
)

// Placeholders for missing optional text.
const (
	Unknown = "Unknown"
	NA      = "N/A"
)

// ValidateCurrent requires data.location and data.current.
func ValidateCurrent(p client.CurrentPayload) error {
	if p.Data.Location == nil {
		return &apperr.ValidationError{Source: "current", Field: "location", Shape: p.Shape}
	}
	if p.Data.Current == nil {
		return &apperr.ValidationError{Source: "current", Field: "current", Shape: p.Shape}
	}
	return nil
}

// ValidateForecast requires data.forecast.forecastday. An empty day list is valid.
func ValidateForecast(p client.ForecastPayload) error {
	if p.Data.Forecast == nil || p.Data.Forecast.ForecastDay == nil {
		return &apperr.ValidationError{Source: "forecast", Field: "forecast.forecastday", Shape: p.Shape}
	}
	return nil
}

// ValidateAstronomy requires data.astronomy.astro.
func ValidateAstronomy(p client.AstronomyPayload) error {
	if p.Data.Astronomy == nil || p.Data.Astronomy.Astro == nil {
		return &apperr.ValidationError{Source: "astronomy", Field: "astronomy.astro", Shape: p.Shape}
	}
	return nil
}

// Bundle validates all three payloads and builds a WeatherBundle. The first
// missing required field fails the whole bundle; nothing partial is returned.
func Bundle(cur client.CurrentPayload, fc client.ForecastPayload, astro client.AstronomyPayload) (models.WeatherBundle, error) {
	for _, err := range []error{ValidateCurrent(cur), ValidateForecast(fc), ValidateAstronomy(astro)} {
		if err != nil {
			return models.WeatherBundle{}, err
		}
	}

	loc := cur.Data.Location
	c := cur.Data.Current
	b := models.WeatherBundle{
		Location: models.BundleLocation{
			Name:      orText(loc.Name, Unknown),
			Region:    orText(loc.Region, Unknown),
			Country:   orText(loc.Country, Unknown),
			Lat:       loc.Lat,
			Lon:       loc.Lon,
			TzID:      loc.TzID,
			Localtime: loc.Localtime,
		},
		Current: models.CurrentWeather{
			Temperature: c.TempC,
			FeelsLike:   c.FeelslikeC,
			Description: conditionText(c.Condition),
			Icon:        conditionIcon(c.Condition),
			Humidity:    c.Humidity,
			WindKph:     c.WindKph,
			WindDir:     orText(c.WindDir, NA),
			UV:          c.UV,
			PrecipMM:    c.PrecipMM,
			PressureMB:  c.PressureMB,
			VisKM:       c.VisKM,
			Cloud:       c.Cloud,
			IsDay:       c.IsDay == 1,
			LastUpdated: c.LastUpdatedEpoch,
		},
		Astronomy:      astronomy(astro.Data.Astronomy.Astro),
		AirQuality:     AirQualityFrom(c.AirQuality),
		HourlyForecast: []models.HourlyForecast{},
		WeeklyForecast: make([]models.DailyForecast, 0, len(fc.Data.Forecast.ForecastDay)),
	}

	days := fc.Data.Forecast.ForecastDay
	if len(days) > 0 {
		b.HourlyForecast = hourly(days[0].Hour)
	}
	for _, d := range days {
		b.WeeklyForecast = append(b.WeeklyForecast, daily(d))
	}
	return b, nil
}

// AstronomyDate returns the YYYY-MM-DD part of an API localtime ("2025-05-01 16:00").
func AstronomyDate(localtime string) string {
	if i := strings.IndexByte(localtime, ' '); i > 0 {
		return localtime[:i]
	}
	return localtime
}

// AirQualityFrom maps a raw air quality block. A missing block reads as zeros.
func AirQualityFrom(aq *client.RawAirQuality) models.AirQuality {
	if aq == nil {
		return models.AirQuality{}
	}
	return models.AirQuality{
		CO:           aq.CO,
		NO2:          aq.NO2,
		O3:           aq.O3,
		SO2:          aq.SO2,
		PM25:         aq.PM25,
		PM10:         aq.PM10,
		USEPAIndex:   aq.USEPAIndex,
		GBDefraIndex: aq.GBDefraIndex,
	}
}

// AirQuality validates the air quality endpoint payload, which must carry data.current.
func AirQuality(p client.AirQualityPayload) (models.AirQuality, error) {
	if p.Data.Current == nil {
		return models.AirQuality{}, &apperr.ValidationError{Source: "air_quality", Field: "current", Shape: p.Shape}
	}
	return AirQualityFrom(p.Data.Current.AirQuality), nil
}

// Outlook maps the seven-day forecast. Entries without weather conditions get
// placeholder text.
func Outlook(p client.SevenDayPayload) []models.OutlookEntry {
	out := make([]models.OutlookEntry, 0, len(p.Data.Forecast))
	for _, e := range p.Data.Forecast {
		entry := models.OutlookEntry{
			Time:           e.Dt,
			TimeText:       e.DtTxt,
			Temperature:    e.Main.Temp,
			FeelsLike:      e.Main.FeelsLike,
			TempMin:        e.Main.TempMin,
			TempMax:        e.Main.TempMax,
			Humidity:       e.Main.Humidity,
			Description:    Unknown,
			WindSpeed:      e.Wind.Speed,
			WindDeg:        e.Wind.Deg,
			ChanceOfPrecip: e.Pop,
			Clouds:         e.Clouds.All,
			Visibility:     e.Visibility,
		}
		if len(e.Weather) > 0 {
			w := e.Weather[0]
			entry.Description = orText(w.Description, orText(w.Main, Unknown))
			entry.Icon = w.Icon
			entry.ConditionID = w.ID
		}
		out = append(out, entry)
	}
	return out
}

func astronomy(a *client.RawAstro) models.Astronomy {
	return models.Astronomy{
		Sunrise:          orText(a.Sunrise, NA),
		Sunset:           orText(a.Sunset, NA),
		Moonrise:         orText(a.Moonrise, NA),
		Moonset:          orText(a.Moonset, NA),
		MoonPhase:        orText(a.MoonPhase, Unknown),
		MoonIllumination: a.MoonIllumination,
		IsMoonUp:         a.IsMoonUp == 1,
		IsSunUp:          a.IsSunUp == 1,
	}
}

func hourly(hours []client.RawHour) []models.HourlyForecast {
	out := make([]models.HourlyForecast, 0, len(hours))
	for _, h := range hours {
		out = append(out, models.HourlyForecast{
			Time:         h.TimeEpoch,
			Temperature:  h.TempC,
			FeelsLike:    h.FeelslikeC,
			Description:  conditionText(h.Condition),
			Icon:         conditionIcon(h.Condition),
			WindKph:      h.WindKph,
			Humidity:     h.Humidity,
			ChanceOfRain: h.ChanceOfRain,
			ChanceOfSnow: h.ChanceOfSnow,
			AirQuality:   AirQualityFrom(h.AirQuality),
		})
	}
	return out
}

func daily(d client.RawForecastDay) models.DailyForecast {
	out := models.DailyForecast{
		Date:        d.Date,
		DateEpoch:   d.DateEpoch,
		Description: Unknown,
	}
	if d.Day == nil {
		return out
	}
	out.MaxTemp = d.Day.MaxtempC
	out.MinTemp = d.Day.MintempC
	out.AvgTemp = d.Day.AvgtempC
	out.MaxWindKph = d.Day.MaxwindKph
	out.TotalPrecipMM = d.Day.TotalprecipMM
	out.AvgHumidity = d.Day.Avghumidity
	out.ChanceOfRain = d.Day.DailyChanceOfRain
	out.ChanceOfSnow = d.Day.DailyChanceOfSnow
	out.Description = conditionText(d.Day.Condition)
	out.Icon = conditionIcon(d.Day.Condition)
	out.UV = d.Day.UV
	return out
}

func conditionText(c *client.RawCondition) string {
	if c == nil {
		return Unknown
	}
	return orText(c.Text, Unknown)
}

func conditionIcon(c *client.RawCondition) string {
	if c == nil {
		return ""
	}
	return c.Icon
}

func orText(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
