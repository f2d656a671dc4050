// Package domain models VIIRS active-fire detection data.
//
// # Data Source
//
// Detections originate from the CSPP VIIRS Active Fires (AF) product.
// An upstream decoder service parses the fixed-format ASCII granule files
// (AFIMG for the I-band product, AFMOD for the M-band product), derives
// the pass metadata from the file name, and publishes one JSON pass
// message per granule to the source topic.
//
// # VIIRS AF Conventions
//
// Each detection row carries:
//
//	latitude, longitude  fire pixel position in decimal degrees (WGS 84)
//	tb                   brightness temperature of the designated band in
//	                     kelvin: I-04 for the I-band product, M-13 for M-band
//	along_scan_res       along-scan pixel resolution (km)
//	along_track_res      along-track pixel resolution (km)
//	conf                 detection confidence; the I-band product encodes
//	                     7/8/9 for low/nominal/high, the M-band product a
//	                     0-100 percentage
//	power                fire radiative power (FRP) in megawatts
//
// Pass end times in granule file names carry only the time of day; an end
// time earlier than the start time means the pass straddled midnight and
// a day is added. See [PassMessage.ObservationTime].
//
// # Spurious Detections
//
// The sensor occasionally reports hotspots with anomalously high
// brightness temperature but negligible radiative power, typically
// sun-glint or high-energy particle hits over the South Atlantic
// anomaly. The quality filter rejects a detection only when its FRP is
// below the configured minimum AND its brightness temperature exceeds
// the configured maximum; either threshold may be left unset, which
// disables that side of the check. See [AcceptQuality].
package domain
